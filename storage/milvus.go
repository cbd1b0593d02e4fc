package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"videoqa/config"
	"videoqa/core"
)

// MilvusStore keeps transcript segments in a Milvus collection with an
// HNSW cosine index. COSINE search scores are similarities already, so
// no renormalization is needed.
type MilvusStore struct {
	mc       client.Client
	coll     string
	embedder Embedder
}

// NewMilvusStore connects, waits for readiness and ensures the
// collection and index exist.
func NewMilvusStore(ctx context.Context, cfg *config.Config) (*MilvusStore, error) {
	mc, err := client.NewClient(ctx, client.Config{Address: cfg.MilvusAddr})
	if err != nil {
		return nil, fmt.Errorf("%w: connect milvus: %v", core.ErrBackendUnavailable, err)
	}

	s := &MilvusStore{mc: mc, coll: cfg.MilvusCollection, embedder: NewOpenAIEmbedder(cfg)}
	if err := s.WaitReady(ctx); err != nil {
		_ = mc.Close()
		return nil, err
	}
	if err := s.ensureCollection(ctx); err != nil {
		_ = mc.Close()
		return nil, err
	}
	return s, nil
}

func (s *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema()
		schema.WithField(entity.NewField().WithName("pk").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
		schema.WithField(entity.NewField().WithName("video_filename").WithDataType(entity.FieldTypeVarChar).WithMaxLength(500))
		schema.WithField(entity.NewField().WithName("start_time").WithDataType(entity.FieldTypeVarChar).WithMaxLength(32))
		schema.WithField(entity.NewField().WithName("end_time").WithDataType(entity.FieldTypeVarChar).WithMaxLength(32))
		schema.WithField(entity.NewField().WithName("content").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		schema.WithField(entity.NewField().WithName("metadata").WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(embeddingDim)))

		if err := s.mc.CreateCollection(ctx, schema, 2); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusStore) Upsert(ctx context.Context, docs []core.IndexedDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(docs))
	videos := make([]string, 0, len(docs))
	starts := make([]string, 0, len(docs))
	ends := make([]string, 0, len(docs))
	contents := make([]string, 0, len(docs))
	metas := make([]string, 0, len(docs))
	vectors := make([][]float32, 0, len(docs))

	for _, d := range docs {
		vec, err := s.embedder.Embed(ctx, d.Content)
		if err != nil {
			return 0, fmt.Errorf("embed segment %s: %w", d.ID, err)
		}
		meta, err := json.Marshal(documentMetadataMap(d.Metadata))
		if err != nil {
			return 0, fmt.Errorf("marshal metadata for %s: %w", d.ID, err)
		}
		ids = append(ids, d.ID)
		videos = append(videos, d.Metadata.VideoFilename)
		starts = append(starts, d.Metadata.StartTime)
		ends = append(ends, d.Metadata.EndTime)
		contents = append(contents, d.Content)
		metas = append(metas, string(meta))
		vectors = append(vectors, vec)
	}

	_, err := s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnVarChar("video_filename", videos),
		entity.NewColumnVarChar("start_time", starts),
		entity.NewColumnVarChar("end_time", ends),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("metadata", metas),
		entity.NewColumnFloatVector("vector", embeddingDim, vectors),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert into milvus: %v", core.ErrBackendUnavailable, err)
	}
	return len(docs), nil
}

func (s *MilvusStore) Search(ctx context.Context, query string, k int, filter *Filter) ([]core.ScoredSegment, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", core.ErrBackendUnavailable, err)
	}

	expr := ""
	if filter != nil && filter.VideoFilename != "" {
		expr = fmt.Sprintf("video_filename == \"%s\"", escapeExpr(filter.VideoFilename))
	}
	sp, _ := entity.NewIndexHNSWSearchParam(74)
	fields := []string{"content", "video_filename", "start_time", "end_time", "metadata"}

	res, err := s.mc.Search(ctx, s.coll, nil, expr, fields,
		[]entity.Vector{entity.FloatVector(vec)}, "vector", entity.COSINE, k, sp)
	if err != nil {
		return nil, fmt.Errorf("%w: search milvus: %v", core.ErrBackendUnavailable, err)
	}

	var hits []core.ScoredSegment
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			h := core.ScoredSegment{Score: float64(r.Scores[i])}
			h.Text = varcharAt(cols["content"], i)
			h.VideoFilename = varcharAt(cols["video_filename"], i)
			h.StartTime = varcharAt(cols["start_time"], i)
			h.EndTime = varcharAt(cols["end_time"], i)
			if raw := varcharAt(cols["metadata"], i); raw != "" {
				_ = json.Unmarshal([]byte(raw), &h.Metadata)
			}
			hits = append(hits, h)
		}
	}
	return hits, nil
}

func (s *MilvusStore) Exists(ctx context.Context, videoFilename string) (bool, error) {
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return false, fmt.Errorf("%w: check collection: %v", core.ErrBackendUnavailable, err)
	}
	if !has {
		// no collection yet means nothing was indexed
		return false, nil
	}

	expr := fmt.Sprintf("video_filename == \"%s\"", escapeExpr(videoFilename))
	res, err := s.mc.Query(ctx, s.coll, nil, expr, []string{"id"}, client.WithLimit(1))
	if err != nil {
		return false, fmt.Errorf("%w: existence check: %v", core.ErrBackendUnavailable, err)
	}
	for _, col := range res {
		if col.Len() > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *MilvusStore) WaitReady(ctx context.Context) error {
	return waitReady(ctx, "milvus", func(ctx context.Context) error {
		_, err := s.mc.HasCollection(ctx, s.coll)
		return err
	})
}

func (s *MilvusStore) Close(ctx context.Context) error {
	return s.mc.Close()
}

func varcharAt(col entity.Column, i int) string {
	c, ok := col.(*entity.ColumnVarChar)
	if !ok {
		return ""
	}
	data := c.Data()
	if i >= len(data) {
		return ""
	}
	return data[i]
}

func escapeExpr(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

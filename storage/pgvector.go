package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"videoqa/config"
	"videoqa/core"
)

// PgVectorStore keeps transcript segments in Postgres with pgvector
// embeddings. Cosine distance from the index is flipped into a
// similarity score so callers always see higher-is-better.
type PgVectorStore struct {
	conn     *pgx.Conn
	embedder Embedder
}

// NewPgVectorStore connects, waits for readiness within the bounded
// polling window, and ensures the schema. A backend that never comes
// up fails with ErrBackendUnavailable; the system cannot run without
// its store.
func NewPgVectorStore(ctx context.Context, cfg *config.Config) (*PgVectorStore, error) {
	conn, err := pgx.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %v", core.ErrBackendUnavailable, err)
	}

	s := &PgVectorStore{conn: conn, embedder: NewOpenAIEmbedder(cfg)}
	if err := s.WaitReady(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) ensureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS transcript_segments (
			id UUID PRIMARY KEY,
			video_filename VARCHAR(500) NOT NULL,
			start_time VARCHAR(32) NOT NULL,
			end_time VARCHAR(32) NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`, embeddingDim)
	if _, err := s.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create transcript_segments table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_transcript_segments_video ON transcript_segments(video_filename);",
		"CREATE INDEX IF NOT EXISTS idx_transcript_segments_embedding ON transcript_segments USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);",
	}
	for _, q := range indexes {
		if _, err := s.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, docs []core.IndexedDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	queued := 0
	for _, d := range docs {
		vec, err := s.embedder.Embed(ctx, d.Content)
		if err != nil {
			return 0, fmt.Errorf("embed segment %s: %w", d.ID, err)
		}
		meta, err := json.Marshal(documentMetadataMap(d.Metadata))
		if err != nil {
			return 0, fmt.Errorf("marshal metadata for %s: %w", d.ID, err)
		}
		batch.Queue(
			`INSERT INTO transcript_segments
			 (id, video_filename, start_time, end_time, content, metadata, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO NOTHING`,
			d.ID, d.Metadata.VideoFilename, d.Metadata.StartTime, d.Metadata.EndTime,
			d.Content, meta, pgvector.NewVector(vec),
		)
		queued++
	}

	br := s.conn.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			return i, fmt.Errorf("insert segment batch: %w", err)
		}
	}
	return queued, nil
}

func (s *PgVectorStore) Search(ctx context.Context, query string, k int, filter *Filter) ([]core.ScoredSegment, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", core.ErrBackendUnavailable, err)
	}

	sql := `SELECT content, video_filename, start_time, end_time, metadata,
	        1 - (embedding <=> $1) AS score
	        FROM transcript_segments`
	args := []any{pgvector.NewVector(vec)}
	if filter != nil && filter.VideoFilename != "" {
		sql += " WHERE video_filename = $2"
		args = append(args, filter.VideoFilename)
	}
	sql += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT %d", k)

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: query pgvector: %v", core.ErrBackendUnavailable, err)
	}
	defer rows.Close()

	var hits []core.ScoredSegment
	for rows.Next() {
		var h core.ScoredSegment
		var meta []byte
		if err := rows.Scan(&h.Text, &h.VideoFilename, &h.StartTime, &h.EndTime, &meta, &h.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &h.Metadata)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read search rows: %v", core.ErrBackendUnavailable, err)
	}
	return hits, nil
}

// Exists runs the cheap filename probe that gates re-embedding. A
// missing table means nothing was ever indexed.
func (s *PgVectorStore) Exists(ctx context.Context, videoFilename string) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM transcript_segments WHERE video_filename = $1)",
		videoFilename).Scan(&exists)
	if err != nil {
		if isMissingTable(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: existence check: %v", core.ErrBackendUnavailable, err)
	}
	return exists, nil
}

func (s *PgVectorStore) WaitReady(ctx context.Context) error {
	return waitReady(ctx, "postgres", func(ctx context.Context) error {
		return s.conn.Ping(ctx)
	})
}

func (s *PgVectorStore) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// isMissingTable reports the undefined_table error class.
func isMissingTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

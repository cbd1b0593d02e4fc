// Package storage provides the vector-store boundary of the pipeline:
// a narrow contract any compliant vector database satisfies, with
// pgvector, Milvus and in-memory implementations.
package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"videoqa/config"
	"videoqa/core"
)

// Filter restricts a store operation to documents of one video.
type Filter struct {
	VideoFilename string
}

// VectorStore is the storage collaborator contract. Scores returned
// from Search are normalized so that higher always means more
// relevant. Exists must treat a missing underlying index as "not
// indexed", never as an error.
type VectorStore interface {
	Upsert(ctx context.Context, docs []core.IndexedDocument) (int, error)
	Search(ctx context.Context, query string, k int, filter *Filter) ([]core.ScoredSegment, error)
	Exists(ctx context.Context, videoFilename string) (bool, error)
	WaitReady(ctx context.Context) error
	Close(ctx context.Context) error
}

const (
	readyTimeout  = 30 * time.Second
	readyInterval = 2 * time.Second
)

// NewVectorStore builds the store selected by the configuration.
func NewVectorStore(ctx context.Context, cfg *config.Config) (VectorStore, error) {
	switch strings.ToLower(cfg.StoreBackend) {
	case "pgvector":
		return NewPgVectorStore(ctx, cfg)
	case "milvus":
		return NewMilvusStore(ctx, cfg)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// waitReady polls probe until it succeeds or the bounded window
// elapses, then fails fast.
func waitReady(ctx context.Context, name string, probe func(context.Context) error) error {
	deadline := time.Now().Add(readyTimeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if lastErr = probe(ctx); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyInterval):
		}
	}
	return fmt.Errorf("%w: %s not ready after %s: %v", core.ErrBackendUnavailable, name, readyTimeout, lastErr)
}

// ---------------- Memory implementation ----------------

// MemoryStore is an in-process VectorStore using token-frequency
// embeddings and cosine similarity. It backs tests and degraded
// single-machine runs where no external store is reachable.
type MemoryStore struct {
	mu   sync.RWMutex
	docs []memoryDoc
}

type memoryDoc struct {
	doc   core.IndexedDocument
	embed map[string]float64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Upsert(ctx context.Context, docs []core.IndexedDocument) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.docs = append(s.docs, memoryDoc{doc: d, embed: embedTokens(d.Content)})
	}
	return len(docs), nil
}

func (s *MemoryStore) Search(ctx context.Context, query string, k int, filter *Filter) ([]core.ScoredSegment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qv := embedTokens(query)
	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(s.docs))
	for i, d := range s.docs {
		if filter != nil && filter.VideoFilename != "" && d.doc.Metadata.VideoFilename != filter.VideoFilename {
			continue
		}
		scores = append(scores, scored{i, cosine(qv, d.embed)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}

	hits := make([]core.ScoredSegment, 0, k)
	for _, sc := range scores[:k] {
		d := s.docs[sc.i].doc
		hits = append(hits, core.ScoredSegment{
			Text:          d.Content,
			VideoFilename: d.Metadata.VideoFilename,
			StartTime:     d.Metadata.StartTime,
			EndTime:       d.Metadata.EndTime,
			Score:         sc.score,
			Metadata:      documentMetadataMap(d.Metadata),
		})
	}
	return hits, nil
}

func (s *MemoryStore) Exists(ctx context.Context, videoFilename string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.docs {
		if d.doc.Metadata.VideoFilename == videoFilename {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) WaitReady(ctx context.Context) error { return nil }

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

// Len reports the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// embedTokens builds an L2-normalized term-frequency vector, enough
// for similarity ranking without a remote embedding model.
func embedTokens(text string) map[string]float64 {
	m := map[string]float64{}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		m[strings.Trim(tok, ".,!?;:\"'()")]++
	}
	delete(m, "")
	var sum float64
	for _, v := range m {
		sum += v * v
	}
	if sum == 0 {
		return m
	}
	norm := math.Sqrt(sum)
	for k, v := range m {
		m[k] = v / norm
	}
	return m
}

func cosine(a, b map[string]float64) float64 {
	var dot float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	return dot
}

// documentMetadataMap flattens document metadata into the open-ended
// metadata map attached to search hits.
func documentMetadataMap(md core.DocumentMetadata) map[string]any {
	m := map[string]any{
		"video_filename":      md.VideoFilename,
		"video_size_bytes":    md.SizeBytes,
		"video_modified_at":   md.ModifiedAt.Format(time.RFC3339),
		"transcript_filename": md.TranscriptFilename,
		"file_extension":      md.FileExtension,
	}
	if md.ProcessedAt != nil {
		m["transcript_processed_at"] = md.ProcessedAt.Format(time.RFC3339)
	}
	return m
}

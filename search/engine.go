// Package search runs similarity queries against the vector store and
// consolidates the resulting segments for display.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"videoqa/core"
	"videoqa/storage"
)

// overfetchFactor is how many store candidates are requested per
// wanted result. Duplicate segments collapse during dedup, so the raw
// window must be wider than k.
const overfetchFactor = 2

// Engine executes nearest-neighbor queries and post-processes the raw
// hits: dedup first, threshold after.
type Engine struct {
	store  storage.VectorStore
	logger *slog.Logger
}

// NewEngine builds a search engine over the store.
func NewEngine(store storage.VectorStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Search returns up to k unique segments with score >= scoreThreshold,
// ordered by descending score. An unreachable backend surfaces as an
// ErrBackendUnavailable-classified error; zero hits with a nil error
// means the corpus confidently has nothing relevant.
func (e *Engine) Search(ctx context.Context, query string, k int, scoreThreshold float64) ([]core.ScoredSegment, error) {
	if k <= 0 {
		return nil, fmt.Errorf("search k must be positive, got %d", k)
	}

	candidates, err := e.store.Search(ctx, query, k*overfetchFactor, nil)
	if err != nil {
		return nil, err
	}

	// Results arrive in the store's own relevance order, so keeping
	// the first occurrence of each key keeps its highest score.
	seen := make(map[core.SegmentDedupKey]struct{}, len(candidates))
	unique := make([]core.ScoredSegment, 0, k)
	for _, c := range candidates {
		if !c.Valid() {
			e.logger.Warn("dropping malformed search hit", "video", c.VideoFilename, "start", c.StartTime)
			continue
		}
		key := c.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
		if len(unique) == k {
			break
		}
	}

	// Threshold filtering runs only after the unique set is built; a
	// record below the threshold still consumed its dedup slot.
	results := unique[:0:len(unique)]
	for _, u := range unique {
		if u.Score >= scoreThreshold {
			results = append(results, u)
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

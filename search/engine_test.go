package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"videoqa/core"
	"videoqa/storage"
)

// fakeStore returns a scripted candidate list and records the k it was
// asked for.
type fakeStore struct {
	hits     []core.ScoredSegment
	err      error
	askedFor int
}

func (f *fakeStore) Upsert(ctx context.Context, docs []core.IndexedDocument) (int, error) {
	return len(docs), nil
}

func (f *fakeStore) Search(ctx context.Context, query string, k int, filter *storage.Filter) ([]core.ScoredSegment, error) {
	f.askedFor = k
	if f.err != nil {
		return nil, f.err
	}
	if k > len(f.hits) {
		k = len(f.hits)
	}
	return f.hits[:k], nil
}

func (f *fakeStore) Exists(ctx context.Context, video string) (bool, error) { return false, nil }
func (f *fakeStore) WaitReady(ctx context.Context) error                    { return nil }
func (f *fakeStore) Close(ctx context.Context) error                        { return nil }

func hit(text, video, start string, score float64) core.ScoredSegment {
	return core.ScoredSegment{
		Text:          text,
		VideoFilename: video,
		StartTime:     start,
		EndTime:       "",
		Score:         score,
	}
}

func TestSearchOverfetchesCandidates(t *testing.T) {
	store := &fakeStore{}
	eng := NewEngine(store, nil)
	if _, err := eng.Search(context.Background(), "query", 5, 0); err != nil {
		t.Fatal(err)
	}
	if store.askedFor != 10 {
		t.Errorf("asked store for %d candidates, want 10", store.askedFor)
	}
}

func TestSearchDeduplicatesFirstOccurrenceWins(t *testing.T) {
	store := &fakeStore{hits: []core.ScoredSegment{
		hit("alpha", "a.mp4", "00:00:01.000", 0.9),
		hit("alpha", "a.mp4", "00:00:01.000", 0.8),
		hit("beta", "a.mp4", "00:00:05.000", 0.7),
	}}
	eng := NewEngine(store, nil)
	got, err := eng.Search(context.Background(), "query", 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Score != 0.9 {
		t.Errorf("duplicate kept score %v, want the first occurrence's 0.9", got[0].Score)
	}
}

func TestSearchThresholdAppliesAfterDedup(t *testing.T) {
	// With k=2 the dedup pass stops at the first two unique segments;
	// the low-scored second one is then filtered out rather than
	// replaced by the third candidate.
	store := &fakeStore{hits: []core.ScoredSegment{
		hit("alpha", "a.mp4", "00:00:01.000", 0.9),
		hit("beta", "a.mp4", "00:00:05.000", 0.2),
		hit("gamma", "a.mp4", "00:00:09.000", 0.85),
	}}
	eng := NewEngine(store, nil)
	got, err := eng.Search(context.Background(), "query", 2, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].Text != "alpha" {
		t.Errorf("got %q, want alpha", got[0].Text)
	}
}

func TestSearchDropsMalformedHits(t *testing.T) {
	store := &fakeStore{hits: []core.ScoredSegment{
		{Text: "", VideoFilename: "a.mp4", StartTime: "00:00:01.000", Score: 0.95},
		hit("alpha", "a.mp4", "00:00:01.000", 0.9),
	}}
	eng := NewEngine(store, nil)
	got, err := eng.Search(context.Background(), "query", 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "alpha" {
		t.Fatalf("got %+v, want only the well-formed hit", got)
	}
}

func TestSearchBackendUnavailable(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("%w: connection refused", core.ErrBackendUnavailable)}
	eng := NewEngine(store, nil)
	_, err := eng.Search(context.Background(), "query", 5, 0)
	if !errors.Is(err, core.ErrBackendUnavailable) {
		t.Fatalf("got %v, want ErrBackendUnavailable", err)
	}
}

func TestSearchRejectsNonPositiveK(t *testing.T) {
	eng := NewEngine(&fakeStore{}, nil)
	if _, err := eng.Search(context.Background(), "query", 0, 0); err == nil {
		t.Fatal("expected error for k=0")
	}
}

// Package index turns parsed transcripts into vector-store documents.
// Indexing is idempotent per video and batch runs isolate per-video
// failures.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"videoqa/core"
	"videoqa/storage"
	"videoqa/transcript"
)

// Indexer embeds and upserts unique transcript segments. The
// existence-check-then-upsert sequence is not atomic; concurrent
// indexing of the same video can race. Expected usage is a single
// batch writer.
type Indexer struct {
	store       storage.VectorStore
	processor   *transcript.Processor
	transcriber transcript.Transcriber
	logger      *slog.Logger
}

// New builds an Indexer. transcriber may be nil; videos without
// transcripts are then skipped with ErrNoTranscript.
func New(store storage.VectorStore, processor *transcript.Processor, transcriber transcript.Transcriber, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: store, processor: processor, transcriber: transcriber, logger: logger}
}

// Index processes one video and upserts its unique segments in a
// single store call. It returns the number of documents submitted;
// zero with a nil error means the video was already indexed and the
// call was a no-op (no embedding work is spent on it).
func (ix *Indexer) Index(ctx context.Context, videoFilename string) (int, error) {
	videoPath := filepath.Join(ix.processor.VideosDir, videoFilename)
	if _, err := os.Stat(videoPath); err != nil {
		return 0, fmt.Errorf("video %s: %w", videoFilename, core.ErrNotFound)
	}

	// The existence probe is far cheaper than re-embedding, so it runs
	// before any embedding call.
	exists, err := ix.store.Exists(ctx, videoFilename)
	if err != nil {
		return 0, fmt.Errorf("existence check for %s: %w", videoFilename, err)
	}
	if exists {
		ix.logger.Info("video already indexed, skipping", "video", videoFilename)
		return 0, nil
	}

	transcriptPath, err := ix.locateTranscript(ctx, videoFilename, videoPath)
	if err != nil {
		return 0, err
	}

	segments, err := transcript.ParseCaptions(transcriptPath, ix.logger)
	if err != nil {
		return 0, err
	}

	md, err := ix.processor.ExtractMetadata(videoPath, transcriptPath)
	if err != nil {
		return 0, err
	}

	docs := buildDocuments(segments, md)
	if dropped := len(segments) - len(docs); dropped > 0 {
		ix.logger.Debug("collapsed duplicate segments", "video", videoFilename, "dropped", dropped)
	}

	count, err := ix.store.Upsert(ctx, docs)
	if err != nil {
		return count, fmt.Errorf("upsert %s: %w", videoFilename, err)
	}
	ix.logger.Info("indexed video", "video", videoFilename, "segments", count)
	return count, nil
}

// locateTranscript finds a transcript for the video, delegating to the
// configured transcriber when none exists yet or the existing one
// predates the video's last modification.
func (ix *Indexer) locateTranscript(ctx context.Context, videoFilename, videoPath string) (string, error) {
	transcriptPath, err := ix.processor.FindTranscript(videoFilename)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return "", err
	}
	found := err == nil

	if ix.transcriber == nil {
		if !found {
			return "", fmt.Errorf("video %s: %w", videoFilename, core.ErrNoTranscript)
		}
		// A stale transcript is still the best available evidence when
		// nothing can regenerate it.
		return transcriptPath, nil
	}

	if found {
		stale, err := ix.processor.NeedsProcessing(videoFilename)
		if err != nil {
			return "", err
		}
		if !stale {
			return transcriptPath, nil
		}
		ix.logger.Info("transcript predates video modification, requesting transcription", "video", videoFilename)
	} else {
		ix.logger.Info("no transcript found, requesting transcription", "video", videoFilename)
	}

	transcriptPath, err = ix.transcriber.Transcribe(ctx, videoPath)
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", videoFilename, err)
	}
	return transcriptPath, nil
}

// buildDocuments deduplicates segments sharing an identical
// (text, start, end) key within the call and attaches the shared video
// metadata to each survivor.
func buildDocuments(segments []core.TranscriptSegment, md core.VideoMetadata) []core.IndexedDocument {
	seen := make(map[core.SegmentDedupKey]struct{}, len(segments))
	docs := make([]core.IndexedDocument, 0, len(segments))
	for _, seg := range segments {
		key := core.SegmentDedupKey{Text: seg.Text, Start: seg.Start, End: seg.End, Video: md.VideoFilename}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		docs = append(docs, core.IndexedDocument{
			ID:      uuid.NewString(),
			Content: seg.Text,
			Metadata: core.DocumentMetadata{
				VideoMetadata: md,
				StartTime:     seg.Start,
				EndTime:       seg.End,
			},
		})
	}
	return docs
}

// Report summarizes one batch indexing run.
type Report struct {
	Indexed  int
	Skipped  int
	Failed   int
	Failures map[string]error
}

// IndexAll indexes every video in the videos directory sequentially.
// One video's failure never aborts the batch: missing transcripts and
// parse failures are recorded and the run continues.
func (ix *Indexer) IndexAll(ctx context.Context) (Report, error) {
	videos, err := ix.processor.ListVideos()
	if err != nil {
		return Report{}, err
	}

	report := Report{Failures: map[string]error{}}
	for _, video := range videos {
		count, err := ix.Index(ctx, video)
		switch {
		case err == nil && count == 0:
			report.Skipped++
		case err == nil:
			report.Indexed++
		case errors.Is(err, core.ErrNoTranscript):
			ix.logger.Warn("no transcript and no transcriber, skipping", "video", video)
			report.Skipped++
		default:
			ix.logger.Error("failed to index video", "video", video, "error", err)
			report.Failed++
			report.Failures[video] = err
		}
	}
	return report, nil
}

package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"videoqa/core"
)

func setupDirs(t *testing.T) (*Processor, string, string) {
	t.Helper()
	root := t.TempDir()
	videos := filepath.Join(root, "videos")
	transcripts := filepath.Join(root, "transcripts")
	for _, d := range []string{videos, transcripts} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	return NewProcessor(videos, transcripts), videos, transcripts
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

func TestExtractMetadataProcessedAt(t *testing.T) {
	p, videos, transcripts := setupDirs(t)
	video := filepath.Join(videos, "talk.mp4")
	touch(t, video, time.Time{})
	tr := filepath.Join(transcripts, "talk_20240131_154500.vtt")
	touch(t, tr, time.Time{})

	md, err := p.ExtractMetadata(video, tr)
	if err != nil {
		t.Fatalf("ExtractMetadata() failed: %v", err)
	}
	if md.VideoFilename != "talk.mp4" || md.FileExtension != ".mp4" {
		t.Errorf("video identity wrong: %+v", md)
	}
	if md.TranscriptFilename != "talk_20240131_154500.vtt" {
		t.Errorf("transcript filename wrong: %q", md.TranscriptFilename)
	}
	if md.ProcessedAt == nil {
		t.Fatal("ProcessedAt should be parsed from the filename suffix")
	}
	want := time.Date(2024, 1, 31, 15, 45, 0, 0, time.UTC)
	if !md.ProcessedAt.Equal(want) {
		t.Errorf("ProcessedAt = %v, want %v", md.ProcessedAt, want)
	}
	if md.SizeBytes != 1 {
		t.Errorf("SizeBytes = %d, want 1", md.SizeBytes)
	}
}

func TestExtractMetadataNoTimestampSuffix(t *testing.T) {
	p, videos, transcripts := setupDirs(t)
	video := filepath.Join(videos, "talk.mp4")
	touch(t, video, time.Time{})
	tr := filepath.Join(transcripts, "talk.vtt")
	touch(t, tr, time.Time{})

	md, err := p.ExtractMetadata(video, tr)
	if err != nil {
		t.Fatalf("ExtractMetadata() failed: %v", err)
	}
	if md.ProcessedAt != nil {
		t.Errorf("ProcessedAt should be nil without a suffix, got %v", md.ProcessedAt)
	}
}

func TestFindTranscriptPrefersNewest(t *testing.T) {
	p, _, transcripts := setupDirs(t)
	old := time.Now().Add(-2 * time.Hour)
	newer := time.Now().Add(-1 * time.Hour)
	touch(t, filepath.Join(transcripts, "talk_20240101_000000.vtt"), old)
	touch(t, filepath.Join(transcripts, "talk_20240201_000000.vtt"), newer)
	touch(t, filepath.Join(transcripts, "other.vtt"), newer)

	got, err := p.FindTranscript("talk.mp4")
	if err != nil {
		t.Fatalf("FindTranscript() failed: %v", err)
	}
	if filepath.Base(got) != "talk_20240201_000000.vtt" {
		t.Errorf("expected newest matching transcript, got %s", got)
	}
}

func TestFindTranscriptIgnoresUnrelatedBaseNames(t *testing.T) {
	p, _, transcripts := setupDirs(t)
	// "talk2" must not match video "talk".
	touch(t, filepath.Join(transcripts, "talk2.vtt"), time.Time{})

	_, err := p.FindTranscript("talk.mp4")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNeedsProcessing(t *testing.T) {
	p, videos, transcripts := setupDirs(t)

	// No transcript at all: needs processing.
	touch(t, filepath.Join(videos, "talk.mp4"), time.Time{})
	needs, err := p.NeedsProcessing("talk.mp4")
	if err != nil {
		t.Fatalf("NeedsProcessing() failed: %v", err)
	}
	if !needs {
		t.Error("video without transcript should need processing")
	}

	// Transcript generated after the video was last modified: fresh.
	videoMtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	touch(t, filepath.Join(videos, "talk.mp4"), videoMtime)
	touch(t, filepath.Join(transcripts, "talk_20240601_120000.vtt"), time.Time{})
	needs, err = p.NeedsProcessing("talk.mp4")
	if err != nil {
		t.Fatalf("NeedsProcessing() failed: %v", err)
	}
	if needs {
		t.Error("fresh transcript should not need processing")
	}

	// Video modified after the transcript was generated: stale.
	touch(t, filepath.Join(videos, "talk.mp4"), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	needs, err = p.NeedsProcessing("talk.mp4")
	if err != nil {
		t.Fatalf("NeedsProcessing() failed: %v", err)
	}
	if !needs {
		t.Error("video newer than transcript should need processing")
	}
}

func TestListVideos(t *testing.T) {
	p, videos, _ := setupDirs(t)
	touch(t, filepath.Join(videos, "b.mp4"), time.Time{})
	touch(t, filepath.Join(videos, "a.mov"), time.Time{})
	touch(t, filepath.Join(videos, "notes.txt"), time.Time{})

	got, err := p.ListVideos()
	if err != nil {
		t.Fatalf("ListVideos() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 videos, got %v", got)
	}
	if got[0] != "a.mov" || got[1] != "b.mp4" {
		t.Errorf("unexpected listing order: %v", got)
	}
}

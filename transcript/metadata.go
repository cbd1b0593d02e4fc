package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"videoqa/core"
)

// processedAtRe captures the generation timestamp some transcribers
// embed in the transcript filename, e.g. "talk_20240131_154500.vtt".
var processedAtRe = regexp.MustCompile(`_(\d{8}_\d{6})\.[^.]+$`)

const processedAtLayout = "20060102_150405"

// Processor locates transcripts for videos and derives per-video
// metadata used as vector-store document metadata and as the
// staleness oracle.
type Processor struct {
	VideosDir      string
	TranscriptsDir string
}

// NewProcessor returns a Processor over the two directory roots of the
// corpus layout contract.
func NewProcessor(videosDir, transcriptsDir string) *Processor {
	return &Processor{VideosDir: videosDir, TranscriptsDir: transcriptsDir}
}

// ExtractMetadata reads size and timestamps for the video from the
// filesystem and parses ProcessedAt out of the transcript filename.
// A missing or unparseable filename timestamp is non-fatal and leaves
// ProcessedAt nil.
func (p *Processor) ExtractMetadata(videoPath, transcriptPath string) (core.VideoMetadata, error) {
	info, err := os.Stat(videoPath)
	if err != nil {
		return core.VideoMetadata{}, fmt.Errorf("stat video %s: %w", videoPath, err)
	}

	md := core.VideoMetadata{
		VideoFilename: filepath.Base(videoPath),
		SizeBytes:     info.Size(),
		// Creation time is not portable across filesystems; the
		// modification time stands in for both.
		CreatedAt:          info.ModTime(),
		ModifiedAt:         info.ModTime(),
		TranscriptFilename: filepath.Base(transcriptPath),
		FileExtension:      strings.ToLower(filepath.Ext(videoPath)),
	}

	if m := processedAtRe.FindStringSubmatch(filepath.Base(transcriptPath)); m != nil {
		if ts, err := time.Parse(processedAtLayout, m[1]); err == nil {
			md.ProcessedAt = &ts
		}
	}
	return md, nil
}

// FindTranscript returns the transcript file matching the video, or
// core.ErrNotFound when none exists. Matching ignores the optional
// generation timestamp suffix; when several transcripts match, the
// most recently modified one wins.
func (p *Processor) FindTranscript(videoFilename string) (string, error) {
	base := strings.TrimSuffix(videoFilename, filepath.Ext(videoFilename))

	entries, err := os.ReadDir(p.TranscriptsDir)
	if err != nil {
		return "", fmt.Errorf("read transcripts dir %s: %w", p.TranscriptsDir, err)
	}

	var best string
	var bestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !matchesVideo(e.Name(), base) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = e.Name()
			bestMod = info.ModTime()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no transcript for video %s: %w", videoFilename, core.ErrNotFound)
	}
	return filepath.Join(p.TranscriptsDir, best), nil
}

// matchesVideo reports whether a transcript filename belongs to the
// video base name, with or without a timestamp suffix.
func matchesVideo(transcriptName, videoBase string) bool {
	ext := filepath.Ext(transcriptName)
	if !isCaptionExt(ext) {
		return false
	}
	stem := strings.TrimSuffix(transcriptName, ext)
	if m := processedAtRe.FindStringSubmatch(transcriptName); m != nil {
		stem = strings.TrimSuffix(stem, "_"+m[1])
	}
	return stem == videoBase
}

func isCaptionExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".vtt", ".srt":
		return true
	}
	return false
}

// NeedsProcessing reports whether the video must be (re)transcribed:
// true when no matching transcript exists, or when the video was
// modified after the transcript's recorded generation time.
func (p *Processor) NeedsProcessing(videoFilename string) (bool, error) {
	transcriptPath, err := p.FindTranscript(videoFilename)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return true, nil
		}
		return false, err
	}

	md, err := p.ExtractMetadata(filepath.Join(p.VideosDir, videoFilename), transcriptPath)
	if err != nil {
		return false, err
	}
	if md.ProcessedAt == nil {
		return false, nil
	}
	return md.ModifiedAt.After(*md.ProcessedAt), nil
}

// ListVideos returns the filenames of every video in the videos
// directory, in lexical order.
func (p *Processor) ListVideos() ([]string, error) {
	entries, err := os.ReadDir(p.VideosDir)
	if err != nil {
		return nil, fmt.Errorf("read videos dir %s: %w", p.VideosDir, err)
	}
	var videos []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".mp4", ".mov", ".mkv", ".webm", ".avi":
			videos = append(videos, e.Name())
		}
	}
	return videos, nil
}

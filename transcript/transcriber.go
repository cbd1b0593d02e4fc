package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"videoqa/core"
)

// Transcriber generates a caption-track file for a video that has
// none. Transcription itself is an external collaborator; the indexer
// only needs the path of the produced file.
type Transcriber interface {
	Transcribe(ctx context.Context, videoPath string) (captionPath string, err error)
}

// WhisperTranscriber produces VTT transcripts through the hosted
// Whisper API and writes them into the transcripts directory with a
// generation timestamp suffix, matching the corpus layout contract.
type WhisperTranscriber struct {
	cli            *openai.Client
	transcriptsDir string
}

// NewWhisperTranscriber returns a Transcriber backed by the given
// client.
func NewWhisperTranscriber(cli *openai.Client, transcriptsDir string) *WhisperTranscriber {
	return &WhisperTranscriber{cli: cli, transcriptsDir: transcriptsDir}
}

// Transcribe sends the video's audio to Whisper and writes the timed
// segments as a VTT file named <base>_<YYYYMMDD_HHMMSS>.vtt.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, videoPath string) (string, error) {
	resp, err := w.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: videoPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription for %s: %w", videoPath, err)
	}
	if len(resp.Segments) == 0 {
		return "", fmt.Errorf("whisper returned no segments for %s: %w", videoPath, core.ErrNoTranscript)
	}

	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	name := fmt.Sprintf("%s_%s.vtt", base, time.Now().Format(processedAtLayout))
	outPath := filepath.Join(w.transcriptsDir, name)

	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range resp.Segments {
		text := normalizeWhitespace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", FormatTimecode(seg.Start), FormatTimecode(seg.End), text)
	}

	if err := os.WriteFile(outPath, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("write transcript %s: %w", outPath, err)
	}
	return outPath, nil
}

// FormatTimecode renders seconds as a VTT timestamp HH:MM:SS.mmm.
func FormatTimecode(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMs := int64(seconds*1000 + 0.5)
	h := totalMs / 3600000
	m := totalMs % 3600000 / 60000
	s := totalMs % 60000 / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

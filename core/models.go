package core

import (
	"fmt"
	"time"
)

// TranscriptSegment is a single timed caption cue. Text is
// whitespace-normalized at parse time and never mutated afterwards.
type TranscriptSegment struct {
	Text  string `json:"text"`
	Start string `json:"start_time"`
	End   string `json:"end_time"`
}

// VideoMetadata describes one video and the transcript it was indexed
// from. It is recomputed on every (re)index and doubles as the
// staleness oracle: a video only needs reprocessing when no transcript
// matches it or the video was modified after ProcessedAt.
type VideoMetadata struct {
	VideoFilename      string     `json:"video_filename"`
	SizeBytes          int64      `json:"video_size_bytes"`
	CreatedAt          time.Time  `json:"video_created_at"`
	ModifiedAt         time.Time  `json:"video_modified_at"`
	TranscriptFilename string     `json:"transcript_filename"`
	ProcessedAt        *time.Time `json:"transcript_processed_at,omitempty"`
	FileExtension      string     `json:"file_extension"`
}

// DocumentMetadata is the metadata attached to every indexed segment:
// the shared per-video metadata plus the segment's own time window.
type DocumentMetadata struct {
	VideoMetadata
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// IndexedDocument is one unique transcript segment prepared for the
// vector store. No two documents for the same video share an identical
// (Content, StartTime, EndTime) triple.
type IndexedDocument struct {
	ID       string           `json:"id"`
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// DedupKey returns the identity under which duplicate segments are
// collapsed, both at index time and in search results.
func (d IndexedDocument) DedupKey() SegmentDedupKey {
	return SegmentDedupKey{
		Text:  d.Content,
		Start: d.Metadata.StartTime,
		End:   d.Metadata.EndTime,
		Video: d.Metadata.VideoFilename,
	}
}

// SegmentDedupKey is the comparable identity of a segment occurrence.
type SegmentDedupKey struct {
	Text  string
	Start string
	End   string
	Video string
}

// ScoredSegment is one raw similarity search hit. Score is normalized
// so that higher always means more relevant, whatever distance metric
// the backend reports.
type ScoredSegment struct {
	Text          string         `json:"text"`
	VideoFilename string         `json:"video_filename"`
	StartTime     string         `json:"start_time"`
	EndTime       string         `json:"end_time"`
	Score         float64        `json:"relevance_score"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// DedupKey returns the segment identity used for duplicate suppression.
func (s ScoredSegment) DedupKey() SegmentDedupKey {
	return SegmentDedupKey{Text: s.Text, Start: s.StartTime, End: s.EndTime, Video: s.VideoFilename}
}

// Valid reports whether the hit carries every required field.
func (s ScoredSegment) Valid() bool {
	return s.Text != "" && s.VideoFilename != "" && s.StartTime != ""
}

// Timestamp is a segment's display time window.
type Timestamp struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// VideoSegment is the response-layer view of one source segment. Its
// identity is the comparable core (text, video, timestamp, score); the
// Metadata map is an open-ended attachment and deliberately excluded
// from equality and key derivation.
type VideoSegment struct {
	Text      string         `json:"text"`
	Video     string         `json:"video"`
	Timestamp Timestamp      `json:"timestamp"`
	Score     float64        `json:"score"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SegmentIdentity is the hashable part of a VideoSegment, usable as a
// map key.
type SegmentIdentity struct {
	Text  string
	Video string
	Start string
	End   string
	Score float64
}

// Identity returns the identity-bearing core of the segment.
func (v VideoSegment) Identity() SegmentIdentity {
	return SegmentIdentity{
		Text:  v.Text,
		Video: v.Video,
		Start: v.Timestamp.Start,
		End:   v.Timestamp.End,
		Score: v.Score,
	}
}

// Equal compares two segments by identity, ignoring Metadata.
func (v VideoSegment) Equal(o VideoSegment) bool {
	return v.Identity() == o.Identity()
}

// ToMap serializes the segment to its dictionary form.
func (v VideoSegment) ToMap() map[string]any {
	return map[string]any{
		"text":  v.Text,
		"video": v.Video,
		"timestamp": map[string]any{
			"start": v.Timestamp.Start,
			"end":   v.Timestamp.End,
		},
		"score":    v.Score,
		"metadata": v.Metadata,
	}
}

// VideoSegmentFromMap reconstructs a VideoSegment from its dictionary
// form. Missing or mistyped required fields yield a MalformedRecord
// error instead of propagating a missing-key fault downstream.
func VideoSegmentFromMap(m map[string]any) (VideoSegment, error) {
	text, ok := m["text"].(string)
	if !ok || text == "" {
		return VideoSegment{}, NewMalformedRecord("text", m["text"])
	}
	video, ok := m["video"].(string)
	if !ok || video == "" {
		return VideoSegment{}, NewMalformedRecord("video", m["video"])
	}
	seg := VideoSegment{Text: text, Video: video}
	ts, ok := m["timestamp"].(map[string]any)
	if !ok {
		return VideoSegment{}, NewMalformedRecord("timestamp", m["timestamp"])
	}
	seg.Timestamp.Start, _ = ts["start"].(string)
	seg.Timestamp.End, _ = ts["end"].(string)
	switch score := m["score"].(type) {
	case float64:
		seg.Score = score
	case int:
		seg.Score = float64(score)
	default:
		return VideoSegment{}, NewMalformedRecord("score", m["score"])
	}
	if md, ok := m["metadata"].(map[string]any); ok {
		seg.Metadata = md
	}
	return seg, nil
}

// SearchResponse is the single response shape every terminal state of
// the answer pipeline returns. HasError is the only discriminator
// callers need; an error response still carries a user-safe Answer.
type SearchResponse struct {
	Answer  string         `json:"answer"`
	Sources []VideoSegment `json:"sources"`
	Err     string         `json:"error,omitempty"`
}

// HasError reports whether the response represents a failure.
func (r SearchResponse) HasError() bool { return r.Err != "" }

// ErrorResponse builds a failed response that still reads coherently to
// a user.
func ErrorResponse(answer string, err error) SearchResponse {
	return SearchResponse{Answer: answer, Sources: []VideoSegment{}, Err: err.Error()}
}

// MergedSegment is a consolidated display window over one video. It is
// derived per query for presentation and never persisted.
type MergedSegment struct {
	Video string  `json:"video"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

func (m MergedSegment) String() string {
	return fmt.Sprintf("%s [%.1f-%.1f] score=%.3f", m.Video, m.Start, m.End, m.Score)
}

package generator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	openai "github.com/sashabaranov/go-openai"

	"videoqa/core"
)

const (
	minQueryLength = 3
	maxQueryLength = 500

	maxRetries = 3
	retryDelay = 5 * time.Second

	// maxSources bounds how many source segments a response carries.
	maxSources = 5

	completionTemperature = 0.3
	completionMaxTokens   = 1024

	contextCacheSize = 128
	titleCacheSize   = 256
)

const systemPrompt = `You answer questions using only the provided video transcript segments.
Answer directly and naturally without mentioning segments or sources.
If the answer is not evident or the information is insufficient, respond with: "I don't know."
Do not speculate or add information not present in the excerpts.
Be concise but informative.
If the segments contradict each other, explain the contradiction naturally.`

// insufficientAnswer is the safe answer attached to failed responses.
// ungroundedAnswer is the success-shaped answer for zero hits; the two
// differ deliberately so callers and tests can tell the states apart.
const (
	insufficientAnswer = "I don't have enough information"
	ungroundedAnswer   = "I don't have enough information."
)

// Searcher is the retrieval collaborator of the synthesizer.
type Searcher interface {
	Search(ctx context.Context, query string, k int, scoreThreshold float64) ([]core.ScoredSegment, error)
}

// Synthesizer validates a question, grounds it in retrieved segments
// and asks the model for an answer. Every terminal state comes back as
// a core.SearchResponse; the only thing callers inspect is HasError.
type Synthesizer struct {
	searcher Searcher
	client   ChatClient
	logger   *slog.Logger

	// sleep is swapped out by tests so retry paths run instantly.
	sleep func(time.Duration)

	contextCache *lru.Cache[string, string]
	titleCache   *lru.Cache[string, string]
}

// NewSynthesizer wires the retrieval and inference collaborators.
func NewSynthesizer(searcher Searcher, client ChatClient, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	contextCache, _ := lru.New[string, string](contextCacheSize)
	titleCache, _ := lru.New[string, string](titleCacheSize)
	return &Synthesizer{
		searcher:     searcher,
		client:       client,
		logger:       logger,
		sleep:        time.Sleep,
		contextCache: contextCache,
		titleCache:   titleCache,
	}
}

// Answer runs one full question/answer cycle.
func (s *Synthesizer) Answer(ctx context.Context, query string, k int, scoreThreshold float64) core.SearchResponse {
	if err := validate(query, k, scoreThreshold); err != nil {
		return core.ErrorResponse(insufficientAnswer, err)
	}
	query = strings.TrimSpace(query)

	hits, err := s.searcher.Search(ctx, query, k, scoreThreshold)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		return core.ErrorResponse(insufficientAnswer, fmt.Errorf("search failed: %w", err))
	}

	sources := make([]core.VideoSegment, 0, len(hits))
	for _, h := range hits {
		if !h.Valid() {
			s.logger.Warn("dropping malformed segment from answer grounding", "video", h.VideoFilename)
			continue
		}
		sources = append(sources, core.VideoSegment{
			Text:      h.Text,
			Video:     h.VideoFilename,
			Timestamp: core.Timestamp{Start: h.StartTime, End: h.EndTime},
			Score:     h.Score,
			Metadata:  h.Metadata,
		})
	}
	if len(sources) == 0 {
		return core.SearchResponse{Answer: ungroundedAnswer, Sources: []core.VideoSegment{}}
	}

	answer, err := s.generate(ctx, query, sources)
	if err != nil {
		return core.ErrorResponse(insufficientAnswer, err)
	}

	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Score > sources[j].Score })
	if len(sources) > maxSources {
		sources = sources[:maxSources]
	}
	return core.SearchResponse{Answer: answer, Sources: sources}
}

// generate calls the model with bounded retries. Only rate-limit
// rejections are retried; everything else fails on the first attempt.
func (s *Synthesizer) generate(ctx context.Context, query string, sources []core.VideoSegment) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: s.userPrompt(query, sources)},
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		answer, err := s.client.Complete(ctx, messages, completionTemperature, completionMaxTokens)
		if err == nil {
			return answer, nil
		}
		if !core.IsRateLimit(err) {
			return "", fmt.Errorf("answer generation failed: %w", err)
		}
		lastErr = err
		s.logger.Warn("model rate limited", "attempt", attempt, "max_retries", maxRetries)
		if attempt < maxRetries {
			s.sleep(retryDelay)
		}
	}
	return "", fmt.Errorf("model still rate limited after %d attempts: %w", maxRetries, lastErr)
}

func (s *Synthesizer) userPrompt(query string, sources []core.VideoSegment) string {
	return fmt.Sprintf("Transcript segments:\n%s\n\nQuestion: %s", s.formatContext(sources), query)
}

// formatContext renders the grounding block, highest score first. The
// rendered form is cached because the same segment set recurs across
// retries and follow-up questions.
func (s *Synthesizer) formatContext(sources []core.VideoSegment) string {
	key := contextCacheKey(sources)
	if cached, ok := s.contextCache.Get(key); ok {
		return cached
	}

	ordered := make([]core.VideoSegment, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	parts := make([]string, 0, len(ordered))
	for i, src := range ordered {
		parts = append(parts, fmt.Sprintf("[Segment %d (Relevance: %.2f)] From video '%s' at %s - %s:\n%s",
			i+1, src.Score, src.Video, src.Timestamp.Start, src.Timestamp.End, strings.TrimSpace(src.Text)))
	}
	rendered := strings.Join(parts, "\n\n")
	s.contextCache.Add(key, rendered)
	return rendered
}

func contextCacheKey(sources []core.VideoSegment) string {
	var b strings.Builder
	for _, src := range sources {
		fmt.Fprintf(&b, "%s|%s|%s|%s|%g;", src.Video, src.Timestamp.Start, src.Timestamp.End, src.Text, src.Score)
	}
	return b.String()
}

// VideoTitle derives a display title from a video filename: extension
// stripped, underscores spaced, words capitalized.
func (s *Synthesizer) VideoTitle(filename string) string {
	if cached, ok := s.titleCache.Get(filename); ok {
		return cached
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	words := strings.Fields(strings.ReplaceAll(base, "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	title := strings.Join(words, " ")
	s.titleCache.Add(filename, title)
	return title
}

func validate(query string, k int, scoreThreshold float64) error {
	length := utf8.RuneCountInString(strings.TrimSpace(query))
	if length < minQueryLength {
		return core.NewValidationError("query", fmt.Sprintf("must be at least %d characters", minQueryLength))
	}
	if length > maxQueryLength {
		return core.NewValidationError("query", fmt.Sprintf("must be at most %d characters", maxQueryLength))
	}
	if k <= 0 {
		return core.NewValidationError("k", "must be a positive integer")
	}
	if scoreThreshold < 0 || scoreThreshold > 1 {
		return core.NewValidationError("score_threshold", "must be between 0 and 1")
	}
	return nil
}

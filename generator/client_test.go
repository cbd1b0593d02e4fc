package generator

import (
	"errors"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"videoqa/core"
)

func TestClassifyModelError(t *testing.T) {
	tooMany := classifyModelError(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests})
	if !core.IsRateLimit(tooMany) {
		t.Error("429 should classify as a rate limit")
	}

	server := classifyModelError(&openai.APIError{HTTPStatusCode: http.StatusInternalServerError})
	if core.IsRateLimit(server) {
		t.Error("500 must not classify as a rate limit")
	}

	plain := classifyModelError(errors.New("rate limit exceeded"))
	if core.IsRateLimit(plain) {
		t.Error("classification is structural, never message-text matching")
	}
}

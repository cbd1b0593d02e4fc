// Package generator turns retrieved transcript segments into a
// grounded natural-language answer.
package generator

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"videoqa/config"
	"videoqa/core"
)

// ChatClient is the model-inference boundary. Implementations classify
// rate-limit rejections as core.RateLimitError so callers never have to
// match on error message text.
type ChatClient interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float32, maxTokens int) (string, error)
}

// OpenAIChatClient calls an OpenAI-compatible chat completion endpoint.
type OpenAIChatClient struct {
	cli   *openai.Client
	model string
}

// NewOpenAIChatClient builds a chat client from the configuration.
func NewOpenAIChatClient(cfg *config.Config) *OpenAIChatClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIChatClient{cli: openai.NewClientWithConfig(clientCfg), model: cfg.ChatModel}
}

func (c *OpenAIChatClient) Complete(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float32, maxTokens int) (string, error) {
	resp, err := c.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", classifyModelError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyModelError wraps HTTP 429 rejections in core.RateLimitError.
func classifyModelError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &core.RateLimitError{Cause: err}
	}
	return err
}

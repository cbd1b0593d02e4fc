package storage

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"videoqa/config"
)

// embeddingDim is the dimensionality the remote stores are sized for.
// It matches the configured embedding model; changing models means
// recreating the index.
const embeddingDim = 1536

// Embedder turns text into a dense vector. The remote stores consume
// it for both document and query embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls the hosted embeddings API.
type OpenAIEmbedder struct {
	cli   *openai.Client
	model string
}

// NewOpenAIEmbedder builds an Embedder from the configuration.
func NewOpenAIEmbedder(cfg *config.Config) *OpenAIEmbedder {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		cli:   openai.NewClientWithConfig(clientConfig),
		model: cfg.EmbeddingModel,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.cli.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding API returned no vectors")
	}
	return resp.Data[0].Embedding, nil
}

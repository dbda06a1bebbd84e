package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"Meridiano/internal/config"
	"Meridiano/internal/domain"
	"Meridiano/internal/ports"
)

// OpenAIEmbedder implements ports.Embedder against an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

var _ ports.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder builds an embedder from configuration. SDK retries are disabled.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, opts ...option.RequestOption) *OpenAIEmbedder {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAIEmbedder{
		client:  openai.NewClient(reqOpts...),
		model:   cfg.Model,
		timeout: orDefault(cfg.Timeout, 30*time.Second),
	}
}

// Embed returns the vector of a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("create embedding: %w", domain.ErrEmptyResponse)
	}
	return resp.Data[0].Embedding, nil
}

// Package openai implements pkg/embeddings' Embedder on the OpenAI embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/papercomputeco/recall/pkg/embeddings"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "text-embedding-3-small"

type embeddingsAPI interface {
	New(ctx context.Context, body openaisdk.EmbeddingNewParams, opts ...option.RequestOption) (*openaisdk.CreateEmbeddingResponse, error)
}

// Config holds configuration for the OpenAI embedder.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// Dimensions truncates the embedding when non-zero. Only supported by
	// text-embedding-3 and later.
	Dimensions uint
}

// Embedder wraps the OpenAI embeddings endpoint.
type Embedder struct {
	api        embeddingsAPI
	model      string
	dimensions uint
}

// NewEmbedder creates an OpenAI embedder.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embeddings: api key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openaisdk.NewClient(opts...)
	return newWithAPI(&client.Embeddings, cfg.Model, cfg.Dimensions), nil
}

func newWithAPI(api embeddingsAPI, model string, dimensions uint) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{api: api, model: model, dimensions: dimensions}
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
		Model: openaisdk.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		params.Dimensions = openaisdk.Int(int64(e.dimensions))
	}

	resp, err := e.api.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embeddings.ErrEmbedding, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", embeddings.ErrEmbedding)
	}

	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, f := range src {
		vec[i] = float32(f)
	}
	return vec, nil
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)

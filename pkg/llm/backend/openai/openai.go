// Package openai implements backend.Backend on the OpenAI Chat Completions
// API. Any OpenAI-compatible endpoint (Ollama, vLLM, Gemini's compatibility
// layer) can be targeted through Config.BaseURL.
package openai

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/llm/backend"
)

const (
	// Name is the router name of this backend.
	Name = "openai"

	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "gpt-4o-mini"
)

// completions is the subset of the SDK's chat completion service used here.
// *openai.ChatCompletionService satisfies it.
type completions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// Config configures the OpenAI backend.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Backend is the OpenAI generation backend.
type Backend struct {
	completions completions
	model       string
}

// New creates an OpenAI backend. SDK-level retries are disabled: retry is
// owned by the message processor's fallback chain.
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := openai.NewClient(opts...)
	return newWithCompletions(&client.Chat.Completions, cfg.Model), nil
}

func newWithCompletions(c completions, model string) *Backend {
	if model == "" {
		model = DefaultModel
	}
	return &Backend{completions: c, model: model}
}

func (b *Backend) Name() string { return Name }

// Generate runs a chat completion.
func (b *Backend) Generate(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResponse, error) {
	completion, err := b.completions.New(ctx, b.buildParams(req))
	if err != nil {
		return nil, classify(err)
	}

	resp := &llm.GenerationResponse{
		Model: backend.ModelName(Name, b.model),
		Usage: &llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if completion.Model != "" {
		resp.Model = backend.ModelName(Name, completion.Model)
	}
	if len(completion.Choices) > 0 {
		resp.Text = completion.Choices[0].Message.Content
		resp.StopReason = string(completion.Choices[0].FinishReason)
	}

	return resp, nil
}

// Stream opens a streaming chat completion.
func (b *Backend) Stream(ctx context.Context, req llm.GenerationRequest) (*llm.Stream, error) {
	stream := b.completions.NewStreaming(ctx, b.buildParams(req))
	if stream == nil {
		return nil, backend.Classify(Name, 0, errors.New("stream not available"))
	}
	// The SDK defers the request error to the first Next; surface it eagerly
	// so stream-open failures can fall back like Generate failures.
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, classify(err)
	}

	var pending []string
	pull := func() (string, bool, error) {
		for len(pending) == 0 {
			if !stream.Next() {
				if err := stream.Err(); err != nil {
					return "", false, classify(err)
				}
				return "", false, nil
			}
			for _, choice := range stream.Current().Choices {
				if choice.Delta.Content != "" {
					pending = append(pending, choice.Delta.Content)
				}
			}
		}
		frag := pending[0]
		pending = pending[1:]
		return frag, true, nil
	}

	return llm.NewStream(backend.ModelName(Name, b.model), pull, stream.Close), nil
}

func (b *Backend) buildParams(req llm.GenerationRequest) openai.ChatCompletionNewParams {
	req = req.WithDefaults()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	return openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(b.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(req.MaxTokens)),
		Temperature:         openai.Float(*req.Temperature),
	}
}

func classify(err error) error {
	status := 0
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return backend.Classify(Name, status, err)
}

var _ backend.Backend = (*Backend)(nil)

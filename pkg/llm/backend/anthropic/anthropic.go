// Package anthropic implements backend.Backend on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/llm/backend"
)

const (
	// Name is the router name of this backend.
	Name = "anthropic"

	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "claude-3-5-haiku-latest"
)

// messages is the subset of the SDK's messages service used here.
type messages interface {
	New(ctx context.Context, params anthropicsdk.MessageNewParams, opts ...option.RequestOption) (*anthropicsdk.Message, error)
	NewStreaming(ctx context.Context, params anthropicsdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[anthropicsdk.MessageStreamEventUnion]
}

// Config configures the Anthropic backend.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Backend is the Anthropic generation backend.
type Backend struct {
	msgs  messages
	model string
}

// New creates an Anthropic backend with SDK-level retries disabled.
func New(cfg Config) (*Backend, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := anthropicsdk.NewClient(opts...)
	return newWithMessages(&client.Messages, cfg.Model), nil
}

func newWithMessages(m messages, model string) *Backend {
	if model == "" {
		model = DefaultModel
	}
	return &Backend{msgs: m, model: model}
}

func (b *Backend) Name() string { return Name }

// Generate sends a single Messages API request and joins the text blocks
// of the reply.
func (b *Backend) Generate(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResponse, error) {
	msg, err := b.msgs.New(ctx, b.buildParams(req))
	if err != nil {
		return nil, classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	model := b.model
	if msg.Model != "" {
		model = string(msg.Model)
	}

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &llm.GenerationResponse{
		Text:       sb.String(),
		Model:      backend.ModelName(Name, model),
		StopReason: string(msg.StopReason),
		Usage: &llm.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
	}, nil
}

// Stream opens a streaming Messages API request. Only text deltas are
// surfaced as fragments.
func (b *Backend) Stream(ctx context.Context, req llm.GenerationRequest) (*llm.Stream, error) {
	stream := b.msgs.NewStreaming(ctx, b.buildParams(req))
	if stream == nil {
		return nil, backend.Classify(Name, 0, errors.New("stream not available"))
	}
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, classify(err)
	}

	pull := func() (string, bool, error) {
		for stream.Next() {
			ev, ok := stream.Current().AsAny().(anthropicsdk.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			if text := ev.Delta.AsTextDelta().Text; text != "" {
				return text, true, nil
			}
		}
		if err := stream.Err(); err != nil {
			return "", false, classify(err)
		}
		return "", false, nil
	}

	return llm.NewStream(backend.ModelName(Name, b.model), pull, stream.Close), nil
}

func (b *Backend) buildParams(req llm.GenerationRequest) anthropicsdk.MessageNewParams {
	req = req.WithDefaults()

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(b.model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
		Temperature: param.NewOpt(*req.Temperature),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}

	return params
}

func classify(err error) error {
	status := 0
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return backend.Classify(Name, status, err)
}

var _ backend.Backend = (*Backend)(nil)

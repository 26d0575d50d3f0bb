// Package query answers a single message: fetch relevant memory, build the
// augmented prompt, generate once, and report which backend answered.
//
// The handler never retries. Fallback across backends belongs to the
// message processor, which uses Prepare and Generate directly so memory is
// fetched once per message.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/llm/backend"
	"github.com/papercomputeco/recall/pkg/memory"
)

const (
	// MemoryPlaceholder is replaced by the rendered memory in system prompts.
	// Prompts without it get the memory appended after a blank line.
	MemoryPlaceholder = "{memory}"

	// DefaultSystemPrompt is used when neither the caller nor configuration
	// supplies one.
	DefaultSystemPrompt = "You are a helpful assistant in a group chat. " +
		"Use the following memories about the user when they are relevant, " +
		"and do not mention them otherwise.\n\nMemories:\n" + MemoryPlaceholder
)

var tracer = otel.Tracer("github.com/papercomputeco/recall/pkg/query")

// Selector picks the primary backend for a task. *router.Router satisfies it.
type Selector interface {
	SelectPrimary(task llm.Task) (backend.Backend, error)
}

// Config configures a Handler.
type Config struct {
	Retriever *memory.Retriever
	Router    Selector

	// SystemPrompt overrides DefaultSystemPrompt.
	SystemPrompt string

	// Temperature and MaxTokens are applied to every request; zero values
	// leave the llm defaults in place.
	Temperature *float64
	MaxTokens   int

	Logger *slog.Logger
}

// Handler composes memory retrieval and generation.
type Handler struct {
	retriever    *memory.Retriever
	router       Selector
	systemPrompt string
	temperature  *float64
	maxTokens    int
	logger       *slog.Logger
}

// NewHandler creates a query handler.
func NewHandler(c Config) *Handler {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		retriever:    c.Retriever,
		router:       c.Router,
		systemPrompt: c.SystemPrompt,
		temperature:  c.Temperature,
		maxTokens:    c.MaxTokens,
		logger:       c.Logger,
	}
}

// Prepared is a query with its memory fetched and its request built. It can
// be generated against any number of backends.
type Prepared struct {
	UserID  string
	GroupID string
	Query   string

	// Memories are the items used, in the order the store returned them.
	Memories []memory.Item

	// Request is the generation request; each Generate call sends a copy.
	Request llm.GenerationRequest
}

// Result is the answer to one query.
type Result struct {
	Answer   string
	Model    string
	Memories []memory.Item
	Usage    *llm.Usage
}

// Answer runs Prepare then Generate.
func (h *Handler) Answer(ctx context.Context, userID, groupID, query string, opts ...Option) (*Result, error) {
	o := applyOptions(opts)
	p := h.Prepare(ctx, userID, groupID, query, opts...)
	return h.Generate(ctx, p, o.backend)
}

// Prepare fetches memory and builds the generation request. Memory failures
// degrade to an empty memory list; Prepare itself never fails.
func (h *Handler) Prepare(ctx context.Context, userID, groupID, query string, opts ...Option) *Prepared {
	o := applyOptions(opts)

	var items []memory.Item
	if h.retriever != nil {
		items = h.retriever.Search(ctx, userID, groupID, query, o.memoryLimit)
	}

	system := o.systemPrompt
	if system == "" {
		system = h.systemPrompt
	}

	return &Prepared{
		UserID:   userID,
		GroupID:  groupID,
		Query:    query,
		Memories: items,
		Request: llm.GenerationRequest{
			Task:        llm.TaskQuery,
			System:      BuildSystem(system, memory.Render(items)),
			Prompt:      query,
			Temperature: h.temperature,
			MaxTokens:   h.maxTokens,
		},
	}
}

// Generate makes one generation call for p. A nil backend means the
// router's primary for the query task.
func (h *Handler) Generate(ctx context.Context, p *Prepared, b backend.Backend) (*Result, error) {
	b, err := h.resolve(b)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "query.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("backend", b.Name()),
		attribute.Int("memory.count", len(p.Memories)),
	)

	resp, err := b.Generate(ctx, p.Request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = b.Name()
	}
	if strings.TrimSpace(resp.Text) == "" {
		h.logger.Warn("backend returned empty text", "backend", b.Name(), "model", model)
	}

	return &Result{
		Answer:   resp.Text,
		Model:    model,
		Memories: p.Memories,
		Usage:    resp.Usage,
	}, nil
}

// Stream opens a streaming generation for p. A nil backend means the
// router's primary for the query task.
func (h *Handler) Stream(ctx context.Context, p *Prepared, b backend.Backend) (*llm.Stream, error) {
	b, err := h.resolve(b)
	if err != nil {
		return nil, err
	}
	return b.Stream(ctx, p.Request)
}

func (h *Handler) resolve(b backend.Backend) (backend.Backend, error) {
	if b != nil {
		return b, nil
	}
	if h.router == nil {
		return nil, fmt.Errorf("query handler has no router")
	}
	return h.router.SelectPrimary(llm.TaskQuery)
}

// BuildSystem places rendered memory into a system prompt: at the
// MemoryPlaceholder when present, otherwise after a blank line.
func BuildSystem(system, rendered string) string {
	if strings.Contains(system, MemoryPlaceholder) {
		return strings.ReplaceAll(system, MemoryPlaceholder, rendered)
	}
	if strings.TrimSpace(system) == "" {
		return rendered
	}
	return system + "\n\n" + rendered
}

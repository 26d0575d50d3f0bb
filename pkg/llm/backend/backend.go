// Package backend defines the generation capability every LLM provider
// implements. The rest of the pipeline only sees this interface; provider
// SDK request, response and error types stay inside the implementations.
package backend

import (
	"context"

	"github.com/papercomputeco/recall/pkg/llm"
)

// Backend turns a prompt and generation parameters into text.
type Backend interface {
	// Name returns the canonical backend name (e.g. "openai", "anthropic").
	// Router tables refer to backends by this name.
	Name() string

	// Generate runs a single synchronous generation. Failures are returned
	// wrapped with ErrUnavailable or ErrTimeout.
	Generate(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResponse, error)

	// Stream opens a streaming generation. Errors opening the stream are
	// classified like Generate errors; errors while reading surface through
	// (*llm.Stream).Err.
	Stream(ctx context.Context, req llm.GenerationRequest) (*llm.Stream, error)
}

// ModelName formats the reporting name of a backend/model pair.
func ModelName(backend, model string) string {
	if model == "" {
		return backend
	}
	return backend + "/" + model
}

package query

import "github.com/papercomputeco/recall/pkg/llm/backend"

// Option adjusts a single Answer or Prepare call.
type Option func(*options)

type options struct {
	backend      backend.Backend
	systemPrompt string
	memoryLimit  int
}

// WithBackend answers with b instead of the router's primary backend.
func WithBackend(b backend.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithSystemPrompt overrides the configured system prompt. Memory is still
// interpolated or appended.
func WithSystemPrompt(system string) Option {
	return func(o *options) {
		o.systemPrompt = system
	}
}

// WithMemoryLimit overrides the retriever's limit.
func WithMemoryLimit(n int) Option {
	return func(o *options) {
		o.memoryLimit = n
	}
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

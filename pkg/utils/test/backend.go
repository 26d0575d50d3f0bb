package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/llm/backend"
)

// MockBackend is a test generation backend that records requests and
// returns configurable results.
type MockBackend struct {
	BackendName string

	// Response is the text returned by Generate.
	Response string

	// Fragments are yielded by Stream. When empty, Stream yields Response.
	Fragments []string

	// Err is returned by both Generate and Stream when set.
	Err error

	// GenerateFunc overrides Generate entirely when set.
	GenerateFunc func(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResponse, error)

	mu       sync.Mutex
	requests []llm.GenerationRequest
}

// NewMockBackend creates a backend that answers every request with response.
func NewMockBackend(name, response string) *MockBackend {
	return &MockBackend{BackendName: name, Response: response}
}

// NewFailingBackend creates a backend that always fails with err.
func NewFailingBackend(name string, err error) *MockBackend {
	return &MockBackend{BackendName: name, Err: err}
}

func (m *MockBackend) Name() string { return m.BackendName }

func (m *MockBackend) Generate(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResponse, error) {
	m.record(req)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &llm.GenerationResponse{Text: m.Response, Model: m.BackendName}, nil
}

func (m *MockBackend) Stream(_ context.Context, req llm.GenerationRequest) (*llm.Stream, error) {
	m.record(req)
	if m.Err != nil {
		return nil, m.Err
	}
	fragments := m.Fragments
	if len(fragments) == 0 {
		fragments = []string{m.Response}
	}
	return llm.NewSliceStream(m.BackendName, fragments...), nil
}

// Requests returns a copy of every request received.
func (m *MockBackend) Requests() []llm.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.GenerationRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate and Stream calls.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockBackend) record(req llm.GenerationRequest) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
}

var _ backend.Backend = (*MockBackend)(nil)

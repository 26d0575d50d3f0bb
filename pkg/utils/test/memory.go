package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/memory"
)

// MockMemoryDriver is a test memory driver that records calls and returns
// configurable results.
type MockMemoryDriver struct {
	// SearchResults is returned by Search for any scope and query.
	SearchResults []memory.Item

	// FailSearch causes Search to return an error.
	FailSearch bool

	// FailAdd causes Add to return an error.
	FailAdd bool

	mu       sync.Mutex
	added    []memory.Item
	searches []string
}

// NewMockMemoryDriver creates a new mock memory driver.
func NewMockMemoryDriver(results ...string) *MockMemoryDriver {
	m := &MockMemoryDriver{SearchResults: make([]memory.Item, 0, len(results))}
	for _, text := range results {
		m.SearchResults = append(m.SearchResults, memory.Item{ID: uuid.NewString(), Text: text})
	}
	return m
}

func (m *MockMemoryDriver) Search(_ context.Context, _ memory.Scope, query string, limit int) ([]memory.Item, error) {
	m.mu.Lock()
	m.searches = append(m.searches, query)
	m.mu.Unlock()

	if m.FailSearch {
		return nil, memory.ErrNotConfigured
	}
	if limit > 0 && len(m.SearchResults) > limit {
		return m.SearchResults[:limit], nil
	}
	return m.SearchResults, nil
}

func (m *MockMemoryDriver) Add(_ context.Context, _ memory.Scope, text string, metadata map[string]any) (*memory.Item, error) {
	if m.FailAdd {
		return nil, memory.ErrNotConfigured
	}
	item := memory.Item{ID: uuid.NewString(), Text: text, Metadata: metadata, CreatedAt: time.Now()}

	m.mu.Lock()
	m.added = append(m.added, item)
	m.mu.Unlock()
	return &item, nil
}

func (m *MockMemoryDriver) GetAll(_ context.Context, _ memory.Scope, limit int) ([]memory.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]memory.Item(nil), m.added...)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Added returns the memories passed to Add.
func (m *MockMemoryDriver) Added() []memory.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]memory.Item(nil), m.added...)
}

// Searches returns the number of Search calls.
func (m *MockMemoryDriver) Searches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.searches)
}

func (m *MockMemoryDriver) Close() error {
	return nil
}

package testutils

import (
	"context"
	"sort"
	"sync"

	"github.com/papercomputeco/recall/pkg/vector"
)

// MockVectorDriver is an in-memory vector driver scoring by dot product.
type MockVectorDriver struct {
	// FailQuery causes Query to return vector.ErrConnection.
	FailQuery bool

	mu        sync.Mutex
	documents []vector.Document
	closed    bool
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{documents: make([]vector.Document, 0)}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, docs...)
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, partition string, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if m.FailQuery {
		return nil, vector.ErrConnection
	}

	m.mu.Lock()
	var results []vector.QueryResult
	for _, doc := range m.documents {
		if doc.Partition != partition {
			continue
		}
		results = append(results, vector.QueryResult{Document: doc, Score: dot(doc.Embedding, embedding)})
	}
	m.mu.Unlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MockVectorDriver) List(_ context.Context, partition string, limit int) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var docs []vector.Document
	for _, doc := range m.documents {
		if doc.Partition == partition {
			docs = append(docs, doc)
		}
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (m *MockVectorDriver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var docs []vector.Document
	for _, doc := range m.documents {
		if want[doc.ID] {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.documents[:0]
	for _, doc := range m.documents {
		if !drop[doc.ID] {
			kept = append(kept, doc)
		}
	}
	m.documents = kept
	return nil
}

// Closed reports whether Close was called.
func (m *MockVectorDriver) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockVectorDriver) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		if i >= len(b) {
			break
		}
		s += a[i] * b[i]
	}
	return s
}

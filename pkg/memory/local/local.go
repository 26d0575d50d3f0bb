// Package local provides an in-memory implementation of the memory.Driver interface.
//
// Memories are kept per scope in insertion order. Search ranks them by the
// number of distinct query terms they contain; ties keep insertion order.
// This is the local-dev story: nothing survives a restart.
package local

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/memory"
)

// Config holds configuration for the local memory driver.
type Config struct {
	// Enabled controls whether the driver stores and searches memories.
	// When false, Add is a no-op and Search returns nil.
	Enabled bool
}

// Driver implements memory.Driver using in-process data structures.
type Driver struct {
	config Config

	mu sync.RWMutex

	// items maps scope key -> memories in insertion order.
	items map[string][]memory.Item

	now func() time.Time
}

// NewDriver creates a local in-memory memory driver.
func NewDriver(config Config) *Driver {
	return &Driver{
		config: config,
		items:  make(map[string][]memory.Item),
		now:    time.Now,
	}
}

// Add stores text as a new memory for the scope.
func (d *Driver) Add(_ context.Context, scope memory.Scope, text string, metadata map[string]any) (*memory.Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, memory.ErrEmptyText
	}

	item := memory.Item{
		ID:        uuid.NewString(),
		Text:      text,
		Metadata:  cloneMetadata(metadata),
		CreatedAt: d.now().UTC(),
	}

	if !d.config.Enabled {
		return &item, nil
	}

	d.mu.Lock()
	key := scope.Key()
	d.items[key] = append(d.items[key], item)
	d.mu.Unlock()

	return &item, nil
}

// Search returns memories sharing at least one term with query. An empty
// query matches every memory.
func (d *Driver) Search(_ context.Context, scope memory.Scope, query string, limit int) ([]memory.Item, error) {
	if !d.config.Enabled {
		return nil, nil
	}

	d.mu.RLock()
	items := d.items[scope.Key()]
	terms := tokenize(query)

	type scored struct {
		item  memory.Item
		score int
	}
	matches := make([]scored, 0, len(items))
	for _, item := range items {
		score := overlap(terms, tokenize(item.Text))
		if len(terms) > 0 && score == 0 {
			continue
		}
		matches = append(matches, scored{item: copyItem(item), score: score})
	}
	d.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	result := make([]memory.Item, len(matches))
	for i, m := range matches {
		result[i] = m.item
	}
	return result, nil
}

// GetAll returns the scope's memories in insertion order.
func (d *Driver) GetAll(_ context.Context, scope memory.Scope, limit int) ([]memory.Item, error) {
	if !d.config.Enabled {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	items := d.items[scope.Key()]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	// Return copies to avoid callers mutating internal state.
	result := make([]memory.Item, len(items))
	for i, item := range items {
		result[i] = copyItem(item)
	}
	return result, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		terms[f] = struct{}{}
	}
	return terms
}

func overlap(query, text map[string]struct{}) int {
	n := 0
	for t := range query {
		if _, ok := text[t]; ok {
			n++
		}
	}
	return n
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "do": true, "for": true, "from": true, "how": true,
	"in": true, "is": true, "it": true, "me": true, "my": true, "of": true,
	"on": true, "or": true, "the": true, "to": true, "was": true, "what": true,
	"when": true, "where": true, "who": true, "with": true, "you": true,
}

func copyItem(item memory.Item) memory.Item {
	item.Metadata = cloneMetadata(item.Metadata)
	return item
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ memory.Driver = (*Driver)(nil)

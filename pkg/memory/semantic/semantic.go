// Package semantic implements memory.Driver on an embedder and a vector store.
//
// Each memory is embedded once on Add and stored in the scope's partition.
// Search embeds the query and returns the nearest memories, most similar
// first. Results below MinScore are dropped.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/vector"
)

// Config configures the semantic memory driver.
type Config struct {
	Embedder embeddings.Embedder
	Vectors  vector.Driver

	// MinScore drops search hits with a lower similarity score.
	MinScore float32

	Logger *slog.Logger
}

// Driver implements memory.Driver with vector similarity search.
type Driver struct {
	embedder embeddings.Embedder
	vectors  vector.Driver
	minScore float32
	logger   *slog.Logger
	now      func() time.Time
}

// NewDriver creates a semantic memory driver.
func NewDriver(c Config) (*Driver, error) {
	if c.Embedder == nil || c.Vectors == nil {
		return nil, fmt.Errorf("%w: semantic memory needs an embedder and a vector store", memory.ErrNotConfigured)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{
		embedder: c.Embedder,
		vectors:  c.Vectors,
		minScore: c.MinScore,
		logger:   c.Logger,
		now:      time.Now,
	}, nil
}

// Add embeds text and stores it in the scope's partition.
func (d *Driver) Add(ctx context.Context, scope memory.Scope, text string, metadata map[string]any) (*memory.Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, memory.ErrEmptyText
	}

	embedding, err := d.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding memory: %w", err)
	}

	doc := vector.Document{
		ID:        uuid.NewString(),
		Partition: scope.Key(),
		Text:      text,
		Metadata:  metadata,
		CreatedAt: d.now().UTC(),
		Embedding: embedding,
	}
	if err := d.vectors.Add(ctx, []vector.Document{doc}); err != nil {
		return nil, fmt.Errorf("storing memory: %w", err)
	}

	d.logger.Debug("memory added", "id", doc.ID, "partition", doc.Partition)
	return toItem(doc), nil
}

// Search returns the memories nearest to query. An empty query lists the
// scope instead.
func (d *Driver) Search(ctx context.Context, scope memory.Scope, query string, limit int) ([]memory.Item, error) {
	if strings.TrimSpace(query) == "" {
		return d.GetAll(ctx, scope, limit)
	}

	embedding, err := d.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := d.vectors.Query(ctx, scope.Key(), embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}

	items := make([]memory.Item, 0, len(results))
	for _, r := range results {
		if r.Score < d.minScore {
			continue
		}
		items = append(items, *toItem(r.Document))
	}
	return items, nil
}

// GetAll lists the scope's memories oldest first.
func (d *Driver) GetAll(ctx context.Context, scope memory.Scope, limit int) ([]memory.Item, error) {
	docs, err := d.vectors.List(ctx, scope.Key(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}

	items := make([]memory.Item, len(docs))
	for i, doc := range docs {
		items[i] = *toItem(doc)
	}
	return items, nil
}

// Close closes the embedder and the vector store.
func (d *Driver) Close() error {
	embErr := d.embedder.Close()
	if err := d.vectors.Close(); err != nil {
		return err
	}
	return embErr
}

func toItem(doc vector.Document) *memory.Item {
	return &memory.Item{
		ID:        doc.ID,
		Text:      doc.Text,
		Metadata:  doc.Metadata,
		CreatedAt: doc.CreatedAt,
	}
}

var _ memory.Driver = (*Driver)(nil)

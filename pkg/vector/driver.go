// Package vector provides interfaces and implementations for vector storage.
//
// Every document belongs to a partition (the memory scope key). Queries and
// listings never cross partitions.
package vector

import (
	"context"
	"time"
)

// Document represents a stored item with its embedding and payload.
type Document struct {
	// ID is a unique identifier for the document (a UUID).
	ID string

	// Partition groups documents that may be searched together.
	Partition string

	// Text is the original content that was embedded.
	Text string

	// Metadata is free-form payload stored alongside the text.
	Metadata map[string]any

	// CreatedAt orders documents within a partition.
	CreatedAt time.Time

	// Embedding is the vector representation of Text.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK documents in partition most similar to embedding,
	// most similar first.
	Query(ctx context.Context, partition string, embedding []float32, topK int) ([]QueryResult, error)

	// List returns up to limit documents in partition, oldest first.
	// A non-positive limit returns everything.
	List(ctx context.Context, partition string, limit int) ([]Document, error)

	// Get retrieves documents by their IDs.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}

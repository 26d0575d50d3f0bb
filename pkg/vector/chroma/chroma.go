// Package chroma provides a Chroma vector database driver implementation.
//
// Documents carry their partition, creation time and payload as Chroma
// metadata, so partition scoping is a metadata "where" filter.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/papercomputeco/recall/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for memory embeddings.
	DefaultCollectionName = "recall_memories"

	// DefaultTopK is used when Query is called with a non-positive topK.
	DefaultTopK = 10

	collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"

	metaPartition = "partition"
	metaCreatedAt = "created_at"
	metaPayload   = "payload"
)

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL        string
	collectionName string
	collectionID   string
	httpClient     *http.Client
	logger         *slog.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName defaults to DefaultCollectionName.
	CollectionName string

	// MaxRetries bounds collection setup attempts while Chroma starts up.
	// Defaults to 1.
	MaxRetries int

	// RetryDelay is the first backoff delay, doubled per attempt up to
	// MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	HTTPClient *http.Client
}

// NewDriver creates a Chroma vector driver, getting or creating the collection.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, errors.New("chroma URL is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	d := &Driver{
		baseURL:        c.URL,
		collectionName: collectionName,
		httpClient:     httpClient,
		logger:         logger,
	}

	attempts := max(c.MaxRetries, 1)
	delay := c.RetryDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		d.collectionID, err = d.getOrCreateCollection(context.Background())
		if err == nil {
			break
		}
		if attempt == attempts {
			return nil, fmt.Errorf("getting or creating collection %q after %d attempts: %w", collectionName, attempts, err)
		}

		logger.Warn("chroma not ready, retrying", "attempt", attempt, "error", err)
		time.Sleep(delay)
		delay *= 2
		if c.MaxRetryDelay > 0 && delay > c.MaxRetryDelay {
			delay = c.MaxRetryDelay
		}
	}

	logger.Info("connected to Chroma",
		"url", c.URL,
		"collection", collectionName,
		"collection_id", d.collectionID,
	)

	return d, nil
}

func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	var collection chromaCollection
	err := d.do(ctx, http.MethodGet, collectionsPath+"/"+d.collectionName, nil, &collection)
	if err == nil {
		return collection.ID, nil
	}

	if err := d.do(ctx, http.MethodPost, collectionsPath, map[string]string{"name": d.collectionName}, &collection); err != nil {
		return "", fmt.Errorf("creating collection: %w", err)
	}
	return collection.ID, nil
}

// Add upserts documents with their embeddings.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	req := chromaAddRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
		Documents:  make([]string, len(docs)),
	}

	for i, doc := range docs {
		meta, err := toMetadata(doc)
		if err != nil {
			return err
		}
		req.IDs[i] = doc.ID
		req.Embeddings[i] = doc.Embedding
		req.Metadatas[i] = meta
		req.Documents[i] = doc.Text
	}

	if err := d.do(ctx, http.MethodPost, d.collectionPath("upsert"), req, nil); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	d.logger.Debug("added documents to chroma", "count", len(docs))
	return nil
}

// Query finds the topK documents in partition most similar to embedding.
func (d *Driver) Query(ctx context.Context, partition string, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	req := chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Where:           map[string]any{metaPartition: partition},
		Include:         []string{"documents", "metadatas", "distances"},
	}

	var resp chromaQueryResponse
	if err := d.do(ctx, http.MethodPost, d.collectionPath("query"), req, &resp); err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}

	// One query embedding means one result group.
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	results := make([]vector.QueryResult, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		result := vector.QueryResult{
			Document: fromChroma(id, at(resp.Documents, i), atMeta(resp.Metadatas, i)),
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			// Lower distance means higher similarity.
			result.Score = 1.0 / (1.0 + resp.Distances[0][i])
		}
		results = append(results, result)
	}

	d.logger.Debug("queried chroma", "partition", partition, "results", len(results))
	return results, nil
}

// List returns up to limit documents in partition, oldest first.
func (d *Driver) List(ctx context.Context, partition string, limit int) ([]vector.Document, error) {
	docs, err := d.get(ctx, chromaGetRequest{
		Where:   map[string]any{metaPartition: partition},
		Include: []string{"documents", "metadatas"},
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(docs, func(a, b vector.Document) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return d.get(ctx, chromaGetRequest{
		IDs:     ids,
		Include: []string{"documents", "metadatas", "embeddings"},
	})
}

func (d *Driver) get(ctx context.Context, req chromaGetRequest) ([]vector.Document, error) {
	var resp chromaGetResponse
	if err := d.do(ctx, http.MethodPost, d.collectionPath("get"), req, &resp); err != nil {
		return nil, fmt.Errorf("getting documents: %w", err)
	}

	docs := make([]vector.Document, len(resp.IDs))
	for i, id := range resp.IDs {
		var text string
		if i < len(resp.Documents) {
			text = resp.Documents[i]
		}
		var meta map[string]any
		if i < len(resp.Metadatas) {
			meta = resp.Metadatas[i]
		}

		docs[i] = fromChroma(id, text, meta)
		if i < len(resp.Embeddings) {
			docs[i].Embedding = resp.Embeddings[i]
		}
	}
	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := d.do(ctx, http.MethodPost, d.collectionPath("delete"), chromaDeleteRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	d.logger.Debug("deleted documents from chroma", "count", len(ids))
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) collectionPath(op string) string {
	return collectionsPath + "/" + d.collectionID + "/" + op
}

// do sends a JSON request and decodes a 2xx response into out when non-nil.
func (d *Driver) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// toMetadata flattens a document into Chroma metadata. Chroma metadata
// values must be scalars, so the free-form payload is stored as JSON.
func toMetadata(doc vector.Document) (map[string]any, error) {
	meta := map[string]any{
		metaPartition: doc.Partition,
		metaCreatedAt: doc.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if len(doc.Metadata) > 0 {
		payload, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling metadata for %s: %w", doc.ID, err)
		}
		meta[metaPayload] = string(payload)
	}
	return meta, nil
}

func fromChroma(id, text string, meta map[string]any) vector.Document {
	doc := vector.Document{ID: id, Text: text}
	if meta == nil {
		return doc
	}

	doc.Partition, _ = meta[metaPartition].(string)

	if raw, ok := meta[metaCreatedAt].(string); ok {
		doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, raw)
	}

	if raw, ok := meta[metaPayload].(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &doc.Metadata)
	}
	return doc
}

func at(values [][]string, i int) string {
	if len(values) == 0 || i >= len(values[0]) {
		return ""
	}
	return values[0][i]
}

func atMeta(values [][]map[string]any, i int) map[string]any {
	if len(values) == 0 || i >= len(values[0]) {
		return nil
	}
	return values[0][i]
}

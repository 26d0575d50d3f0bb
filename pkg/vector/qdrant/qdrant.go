// Package qdrant provides a vector driver backed by a Qdrant collection over
// its gRPC API.
package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/recall/pkg/vector"
)

const (
	// DefaultTarget is the default Qdrant gRPC address.
	DefaultTarget = "localhost:6334"

	// DefaultCollection is used when Config.Collection is empty.
	DefaultCollection = "recall_memories"

	// listCap bounds List when called without a limit.
	listCap = 10000

	payloadPartition = "partition"
	payloadText      = "text"
	payloadMetadata  = "metadata"
	payloadCreatedAt = "created_at"
)

// points is the subset of *qdrant.Client used by the driver.
type points interface {
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is the host:port of the Qdrant gRPC endpoint.
	Target string

	// APIKey is sent when set. UseTLS should be enabled alongside it for
	// Qdrant Cloud.
	APIKey string
	UseTLS bool

	// Collection is created on startup if missing.
	Collection string

	// Dimensions is the embedding size of the collection.
	Dimensions uint
}

// Driver implements vector.Driver on a Qdrant collection.
type Driver struct {
	client     points
	collection string
	dimensions int
	logger     *slog.Logger
}

// NewDriver connects to Qdrant and ensures the collection and its payload
// indexes exist.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Dimensions == 0 {
		return nil, errors.New("qdrant embedding dimensions cannot be 0, must be configured")
	}
	if c.Target == "" {
		c.Target = DefaultTarget
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}

	host, portStr, err := net.SplitHostPort(c.Target)
	if err != nil {
		return nil, fmt.Errorf("parsing qdrant target %q: %w", c.Target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parsing qdrant port %q: %w", portStr, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, c.Collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection: %v", vector.ErrConnection, err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %s: %w", c.Collection, err)
		}

		// Keyword index for partition filters, integer index for ordering.
		if _, err := client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: c.Collection,
			FieldName:      payloadPartition,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		}); err != nil {
			client.Close()
			return nil, fmt.Errorf("indexing %s: %w", payloadPartition, err)
		}
		if _, err := client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: c.Collection,
			FieldName:      payloadCreatedAt,
			FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
		}); err != nil {
			client.Close()
			return nil, fmt.Errorf("indexing %s: %w", payloadCreatedAt, err)
		}
	}

	logger.Info("qdrant vector driver initialized",
		"target", c.Target,
		"collection", c.Collection,
		"dimensions", c.Dimensions,
		"created", !exists,
	)

	return newWithClient(client, c.Collection, int(c.Dimensions), logger), nil
}

func newWithClient(client points, collection string, dimensions int, logger *slog.Logger) *Driver {
	return &Driver{
		client:     client,
		collection: collection,
		dimensions: dimensions,
		logger:     logger,
	}
}

// Add upserts documents. Document IDs must be UUIDs.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	pts := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Embedding) != d.dimensions {
			return fmt.Errorf("%w: doc %s has %d, want %d", vector.ErrDimensions, doc.ID, len(doc.Embedding), d.dimensions)
		}
		payload, err := toPayload(doc)
		if err != nil {
			return fmt.Errorf("encoding payload for doc %s: %w", doc.ID, err)
		}
		pts = append(pts, &qdrant.PointStruct{
			Id:      qdrant.NewID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload,
		})
	}

	if _, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         pts,
	}); err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant", "count", len(docs))
	return nil
}

// Query finds the topK documents in partition most similar to embedding.
func (d *Driver) Query(ctx context.Context, partition string, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	if len(embedding) != d.dimensions {
		return nil, fmt.Errorf("%w: query has %d, want %d", vector.ErrDimensions, len(embedding), d.dimensions)
	}

	scored, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         partitionFilter(partition),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(scored))
	for _, p := range scored {
		results = append(results, vector.QueryResult{
			Document: fromPayload(p.GetId().GetUuid(), p.GetPayload()),
			Score:    p.GetScore(),
		})
	}

	d.logger.Debug("queried qdrant", "results", len(results))
	return results, nil
}

// List scrolls the partition ordered by creation time.
func (d *Driver) List(ctx context.Context, partition string, limit int) ([]vector.Document, error) {
	if limit <= 0 || limit > listCap {
		limit = listCap
	}

	retrieved, err := d.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: d.collection,
		Filter:         partitionFilter(partition),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		OrderBy:        &qdrant.OrderBy{Key: payloadCreatedAt},
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling points: %w", err)
	}

	docs := make([]vector.Document, 0, len(retrieved))
	for _, p := range retrieved {
		docs = append(docs, fromPayload(p.GetId().GetUuid(), p.GetPayload()))
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

// Get retrieves documents by their IDs, including embeddings.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	retrieved, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting points: %w", err)
	}

	docs := make([]vector.Document, 0, len(retrieved))
	for _, p := range retrieved {
		doc := fromPayload(p.GetId().GetUuid(), p.GetPayload())
		doc.Embedding = p.GetVectors().GetVector().GetData()
		docs = append(docs, doc)
	}
	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	if _, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	}); err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	d.logger.Debug("deleted documents from qdrant", "count", len(ids))
	return nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

func partitionFilter(partition string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadPartition, partition)},
	}
}

// Metadata is stored as a JSON string so arbitrary values survive the
// round trip through Qdrant's payload types.
func toPayload(doc vector.Document) (map[string]*qdrant.Value, error) {
	meta := "{}"
	if len(doc.Metadata) > 0 {
		raw, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, err
		}
		meta = string(raw)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return map[string]*qdrant.Value{
		payloadPartition: qdrant.NewValueString(doc.Partition),
		payloadText:      qdrant.NewValueString(doc.Text),
		payloadMetadata:  qdrant.NewValueString(meta),
		payloadCreatedAt: qdrant.NewValueInt(createdAt.UnixNano()),
	}, nil
}

func fromPayload(id string, payload map[string]*qdrant.Value) vector.Document {
	doc := vector.Document{
		ID:        id,
		Partition: payload[payloadPartition].GetStringValue(),
		Text:      payload[payloadText].GetStringValue(),
	}
	if ns := payload[payloadCreatedAt].GetIntegerValue(); ns != 0 {
		doc.CreatedAt = time.Unix(0, ns).UTC()
	}
	if raw := payload[payloadMetadata].GetStringValue(); raw != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(raw), &meta); err == nil && len(meta) > 0 {
			doc.Metadata = meta
		}
	}
	return doc
}

var _ vector.Driver = (*Driver)(nil)

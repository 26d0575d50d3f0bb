package memory

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultLimit is the number of memories fetched per query.
	DefaultLimit = 5

	// NoRelevantMemory is rendered in place of an empty memory list.
	NoRelevantMemory = "No relevant memory found."
)

var tracer = otel.Tracer("github.com/papercomputeco/recall/pkg/memory")

// Retriever searches a Driver and renders the result for a prompt.
// Search failures degrade to an empty result.
type Retriever struct {
	driver Driver
	limit  int
	logger *slog.Logger
}

// NewRetriever wraps driver. A nil driver yields a retriever that always
// returns no memories. A non-positive limit uses DefaultLimit.
func NewRetriever(driver Driver, limit int, logger *slog.Logger) *Retriever {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Retriever{driver: driver, limit: limit, logger: logger}
}

// Limit returns the configured search limit.
func (r *Retriever) Limit() int { return r.limit }

// Search returns memories relevant to query for the user and group. It never
// fails: driver errors are logged and an empty slice is returned.
func (r *Retriever) Search(ctx context.Context, userID, groupID, query string, limit int) []Item {
	if r == nil || r.driver == nil {
		return nil
	}
	if limit <= 0 {
		limit = r.limit
	}

	ctx, span := tracer.Start(ctx, "memory.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("memory.limit", limit))

	items, err := r.driver.Search(ctx, Scope{UserID: userID, GroupID: groupID}, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "memory search failed")
		r.logger.Warn("memory search failed, continuing without memory",
			"user_id", userID,
			"group_id", groupID,
			"error", err,
		)
		return nil
	}
	if len(items) > limit {
		items = items[:limit]
	}

	span.SetAttributes(attribute.Int("memory.results", len(items)))
	return items
}

// Render formats memories as a 1-indexed numbered list in the order given.
// An empty list renders as NoRelevantMemory.
func Render(items []Item) string {
	if len(items) == 0 {
		return NoRelevantMemory
	}

	var sb strings.Builder
	for i, item := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(item.Text)
	}
	return sb.String()
}

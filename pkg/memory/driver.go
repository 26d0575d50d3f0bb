// Package memory provides a pluggable long-term memory layer.
//
// Memories are short, durable facts about a user within a group ("Deadline
// is Friday", "Client prefers email"). They are written back after a
// conversation turn and searched before generation so the answer can take
// them into account.
//
// Drivers are pluggable via configuration:
//
//	[memory]
//	provider = "local"   # or "semantic"
package memory

import (
	"context"
	"net/url"
	"time"
)

// Driver stores and searches memories for a scope.
type Driver interface {
	// Search returns up to limit memories relevant to query, most relevant
	// first. Callers must not re-sort the result.
	Search(ctx context.Context, scope Scope, query string, limit int) ([]Item, error)

	// Add stores a new memory for the scope.
	Add(ctx context.Context, scope Scope, text string, metadata map[string]any) (*Item, error)

	// GetAll returns up to limit memories for the scope in insertion order.
	// A non-positive limit returns everything.
	GetAll(ctx context.Context, scope Scope, limit int) ([]Item, error)

	// Close releases driver resources.
	Close() error
}

// Scope identifies whose memories are being read or written.
type Scope struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`
}

// Key returns a stable string form of the scope, used as a partition key
// by drivers that store every scope in one table or collection.
func (s Scope) Key() string {
	return url.PathEscape(s.UserID) + "/" + url.PathEscape(s.GroupID)
}

// Item is a single stored memory. Items are owned by the driver; callers
// receive copies.
type Item struct {
	ID        string         `json:"id"`
	Text      string         `json:"memory"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

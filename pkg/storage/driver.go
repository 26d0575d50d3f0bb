// Package storage is the audit log of processed messages.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit caps ListMessages when a Filter carries no limit.
const DefaultListLimit = 50

// Driver defines the interface for persisting and listing processed messages.
// Every implementation is idempotent on (Platform, PlatformMessageID).
type Driver interface {
	// SaveMessage stores a message. Returns true if the message was newly
	// inserted, false if a message with the same platform key already exists.
	// Saving an existing key is a no-op.
	SaveMessage(ctx context.Context, msg *Message) (bool, error)

	// GetMessage retrieves a message by its platform key.
	GetMessage(ctx context.Context, platform, platformMessageID string) (*Message, error)

	// ListMessages returns the messages matching the filter, newest first.
	ListMessages(ctx context.Context, filter Filter) ([]*Message, error)

	// Close closes the store and releases any resources.
	Close() error
}

// Message is one processed inbound message and the response it produced.
type Message struct {
	ID                string    `json:"id"`
	Platform          string    `json:"platform"`
	PlatformMessageID string    `json:"platform_message_id"`
	GroupID           string    `json:"group_id"`
	UserID            string    `json:"user_id"`
	Content           string    `json:"content"`
	Response          string    `json:"response"`
	Model             string    `json:"model"`
	ReplyToMessageID  string    `json:"reply_to_message_id,omitempty"`
	ThreadID          string    `json:"thread_id,omitempty"`
	MemoryIDs         []string  `json:"memory_ids,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Key returns the idempotency key of the message.
func (m *Message) Key() string {
	return m.Platform + ":" + m.PlatformMessageID
}

// Prepare validates msg and fills in a generated ID and creation time
// when they are unset.
func Prepare(msg *Message) error {
	if msg == nil {
		return errors.New("cannot store nil message")
	}
	if strings.TrimSpace(msg.Platform) == "" || strings.TrimSpace(msg.PlatformMessageID) == "" {
		return errors.New("message requires platform and platform message id")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Filter narrows ListMessages. Empty fields match everything.
type Filter struct {
	Platform string
	UserID   string
	GroupID  string
	Limit    int
}

// Matches reports whether msg satisfies every set field of the filter.
func (f Filter) Matches(msg *Message) bool {
	if f.Platform != "" && msg.Platform != f.Platform {
		return false
	}
	if f.UserID != "" && msg.UserID != f.UserID {
		return false
	}
	if f.GroupID != "" && msg.GroupID != f.GroupID {
		return false
	}
	return true
}

// EffectiveLimit returns the limit, or DefaultListLimit when unset.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

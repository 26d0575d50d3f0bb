// Package inmemory provides a map-backed audit log driver.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/papercomputeco/recall/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu guards messages
	mu sync.RWMutex

	// messages is keyed by storage.Message.Key
	messages map[string]*storage.Message
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		messages: make(map[string]*storage.Message),
	}
}

// SaveMessage stores a copy of msg. Returns false when the platform key
// was already stored.
func (d *Driver) SaveMessage(_ context.Context, msg *storage.Message) (bool, error) {
	if err := storage.Prepare(msg); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.messages[msg.Key()]; ok {
		return false, nil
	}

	d.messages[msg.Key()] = clone(msg)
	return true, nil
}

// GetMessage retrieves a message by its platform key.
func (d *Driver) GetMessage(_ context.Context, platform, platformMessageID string) (*storage.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	msg, ok := d.messages[platform+":"+platformMessageID]
	if !ok {
		return nil, storage.NotFoundError{Platform: platform, PlatformMessageID: platformMessageID}
	}

	return clone(msg), nil
}

// ListMessages returns matching messages, newest first.
func (d *Driver) ListMessages(_ context.Context, filter storage.Filter) ([]*storage.Message, error) {
	d.mu.RLock()
	var result []*storage.Message
	for _, msg := range d.messages {
		if filter.Matches(msg) {
			result = append(result, clone(msg))
		}
	}
	d.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit := filter.EffectiveLimit(); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Count returns the number of stored messages.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.messages)
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func clone(msg *storage.Message) *storage.Message {
	c := *msg
	if msg.MemoryIDs != nil {
		c.MemoryIDs = append([]string(nil), msg.MemoryIDs...)
	}
	return &c
}

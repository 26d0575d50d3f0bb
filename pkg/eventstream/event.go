package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMessageProcessed is emitted after a message is answered successfully.
	EventTypeMessageProcessed = "recall.message.processed"
)

// MessageProcessedEvent is a transport-neutral event payload for an answered message.
type MessageProcessedEvent struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	EmittedAt     time.Time      `json:"emitted_at"`
	Source        EventSource    `json:"source"`
	Generation    GenerationMeta `json:"generation"`
	Content       string         `json:"content"`
	Response      string         `json:"response"`
	MemoryIDs     []string       `json:"memory_ids,omitempty"`
}

// EventSource identifies where the message originated.
type EventSource struct {
	Platform          string `json:"platform"`
	PlatformMessageID string `json:"platform_message_id"`
	UserID            string `json:"user_id"`
	GroupID           string `json:"group_id"`
	ThreadID          string `json:"thread_id,omitempty"`
}

// GenerationMeta captures how the response was produced.
type GenerationMeta struct {
	Model      string `json:"model"`
	Attempts   int    `json:"attempts"`
	DurationMs int64  `json:"duration_ms"`
}

// NewMessageProcessedEvent stamps a new event with an ID and emission time.
func NewMessageProcessedEvent(source EventSource, gen GenerationMeta, content, response string, memoryIDs []string) *MessageProcessedEvent {
	return &MessageProcessedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMessageProcessed,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Generation:    gen,
		Content:       content,
		Response:      response,
		MemoryIDs:     memoryIDs,
	}
}

// Key is the partitioning key for the event: one partition per conversation scope.
func (e *MessageProcessedEvent) Key() string {
	return e.Source.UserID + "/" + e.Source.GroupID
}

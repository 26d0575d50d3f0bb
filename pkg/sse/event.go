// Package sse reads and writes the Server-Sent Events framing used by the
// recall streaming chat endpoint.
//
// The server writes one "data:" event per generated fragment and a final
// "done" (or "error") event. "recall ask --stream" reads them back.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event types written by the streaming chat endpoint after the fragments.
const (
	EventDone  = "done"
	EventError = "error"
)

// Event represents a single parsed SSE event, delimited by a blank line
// in the byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n".
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}

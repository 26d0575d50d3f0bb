package sse

import (
	"io"
	"strings"
)

type flusher interface {
	Flush() error
}

// Writer frames events onto a response body. Buffered destinations such as
// *bufio.Writer are flushed after each event so the client sees fragments as
// they are generated; an *io.PipeWriter blocks until the reader consumes them.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent writes ev and flushes. Data containing newlines is split
// across multiple "data:" lines so the reader rejoins it unchanged.
func (w *Writer) WriteEvent(ev Event) error {
	var b strings.Builder
	if ev.ID != "" {
		b.WriteString("id: " + ev.ID + "\n")
	}
	if ev.Type != "" {
		b.WriteString("event: " + ev.Type + "\n")
	}
	for line := range strings.SplitSeq(ev.Data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")

	if _, err := io.WriteString(w.w, b.String()); err != nil {
		return err
	}
	if f, ok := w.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// WriteData writes a default-type event carrying data.
func (w *Writer) WriteData(data string) error {
	return w.WriteEvent(Event{Data: data})
}

// Package logger builds the *slog.Logger used across recall.
//
// Components never construct handlers themselves; they receive a logger
// from their caller and attach their own attributes with With.
package logger

import (
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Format selects the handler New renders records with.
type Format int

const (
	// FormatText is slog's key=value text handler.
	FormatText Format = iota
	// FormatJSON is slog's JSON handler, one object per line.
	FormatJSON
	// FormatPretty is the colorized charmbracelet/log handler.
	FormatPretty
)

type settings struct {
	level   slog.Leveler
	format  Format
	source  bool
	writers []io.Writer
}

// New creates a logger from the given options. Output goes to os.Stdout
// unless a writer is supplied.
func New(opts ...Option) *slog.Logger {
	s := &settings{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(s)
	}
	return slog.New(s.handler())
}

func (s *settings) handler() slog.Handler {
	out := s.output()

	if s.format == FormatPretty {
		return charmlog.NewWithOptions(out, charmlog.Options{
			Level:           charmLevel(s.level.Level()),
			ReportTimestamp: true,
			ReportCaller:    s.source,
		})
	}

	hopts := &slog.HandlerOptions{Level: s.level, AddSource: s.source}
	if s.format == FormatJSON {
		return slog.NewJSONHandler(out, hopts)
	}
	return slog.NewTextHandler(out, hopts)
}

func (s *settings) output() io.Writer {
	switch len(s.writers) {
	case 0:
		return os.Stdout
	case 1:
		return s.writers[0]
	}
	return io.MultiWriter(s.writers...)
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func charmLevel(l slog.Level) charmlog.Level {
	switch {
	case l <= slog.LevelDebug:
		return charmlog.DebugLevel
	case l >= slog.LevelError:
		return charmlog.ErrorLevel
	case l >= slog.LevelWarn:
		return charmlog.WarnLevel
	}
	return charmlog.InfoLevel
}

package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger created with New.
type Option func(*settings)

// WithLevel sets the minimum level. A *slog.LevelVar can be passed to
// change the level of a running logger.
func WithLevel(level slog.Leveler) Option {
	return func(s *settings) { s.level = level }
}

// WithDebug lowers the level to Debug when debug is true.
func WithDebug(debug bool) Option {
	return func(s *settings) {
		if debug {
			s.level = slog.LevelDebug
		}
	}
}

// WithFormat selects the handler.
func WithFormat(f Format) Option {
	return func(s *settings) { s.format = f }
}

// WithJSON selects FormatJSON when json is true. It takes precedence over
// WithPretty regardless of order.
func WithJSON(json bool) Option {
	return func(s *settings) {
		if json {
			s.format = FormatJSON
		}
	}
}

// WithPretty selects FormatPretty when pretty is true, unless JSON was
// already chosen.
func WithPretty(pretty bool) Option {
	return func(s *settings) {
		if pretty && s.format != FormatJSON {
			s.format = FormatPretty
		}
	}
}

// WithWriter replaces the output writers with w.
func WithWriter(w io.Writer) Option {
	return func(s *settings) { s.writers = []io.Writer{w} }
}

// WithWriters writes every record to all of ws.
func WithWriters(ws ...io.Writer) Option {
	return func(s *settings) { s.writers = ws }
}

// WithSource includes the caller's file:line.
func WithSource(source bool) Option {
	return func(s *settings) { s.source = source }
}

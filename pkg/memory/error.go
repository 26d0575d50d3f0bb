package memory

import "errors"

var (
	// ErrNotConfigured is returned when memory operations are attempted
	// but no memory driver has been configured.
	ErrNotConfigured = errors.New("memory not configured")

	// ErrEmptyText is returned by Add when the memory text is blank.
	ErrEmptyText = errors.New("memory text is empty")
)

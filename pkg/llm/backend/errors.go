package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrUnavailable covers rate limits, auth failures, transport errors and
	// provider-side errors. It is retryable by the orchestration layer.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrTimeout is returned when a backend call exceeds its deadline.
	// It is retryable by the orchestration layer.
	ErrTimeout = errors.New("backend timeout")
)

// Error is a classified backend failure.
type Error struct {
	// Backend is the name of the failing backend.
	Backend string

	// Kind is ErrUnavailable or ErrTimeout.
	Kind error

	// StatusCode is the provider HTTP status, when known.
	StatusCode int

	// Err is the underlying provider error.
	Err error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %v (status %d): %v", e.Backend, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Classify wraps a provider error into an *Error. Caller cancellation is
// returned unchanged so it is never mistaken for a retryable failure.
func Classify(backend string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	kind := ErrUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = ErrTimeout
	}

	return &Error{
		Backend:    backend,
		Kind:       kind,
		StatusCode: statusCode,
		Err:        err,
	}
}

// IsRetryable reports whether err is a classified, retryable backend error.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

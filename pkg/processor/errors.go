package processor

import "errors"

var (
	// ErrNoUserMessage is returned when a web-chat request carries no
	// user-role message. It is a client error and never counted in metrics.
	ErrNoUserMessage = errors.New("no user message in request")

	// ErrGenerationFailed is returned when every backend in the fallback
	// chain failed.
	ErrGenerationFailed = errors.New("generation failed")
)

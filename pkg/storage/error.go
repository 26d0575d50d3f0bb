package storage

// NotFoundError is returned when a message doesn't exist in the store.
type NotFoundError struct {
	Platform          string
	PlatformMessageID string
}

func (e NotFoundError) Error() string {
	if e.PlatformMessageID == "" {
		return "message not found"
	}

	return "message not found: " + e.Platform + ":" + e.PlatformMessageID
}

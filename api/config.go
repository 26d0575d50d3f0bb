// Package api provides the recall HTTP API: message processing, web chat,
// metrics, memory and audit log inspection, and the MCP endpoint.
package api

import (
	"time"

	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// RequestTimeout bounds message and chat requests, including streamed
	// answers. Zero means no timeout.
	RequestTimeout time.Duration

	// MemoryDriver backs GET /v1/memories. Optional.
	MemoryDriver memory.Driver

	// Storage backs the audit log endpoints. Optional.
	Storage storage.Driver

	// DisableMCP skips mounting the /mcp endpoint.
	DisableMCP bool
}

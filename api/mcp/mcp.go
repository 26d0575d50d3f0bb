// Package mcp provides an MCP (Model Context Protocol) server exposing recall
// memory search and pipeline metrics as tools.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/metrics"
	"github.com/papercomputeco/recall/pkg/utils"
)

type Config struct {
	// Retriever searches memories for the memory_search tool.
	Retriever *memory.Retriever

	// Metrics backs the pipeline_metrics tool.
	Metrics *metrics.Collector

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory and metrics tools.
func NewServer(c Config) (*Server, error) {
	if c.Retriever == nil {
		return nil, errors.New("memory retriever is required")
	}
	if c.Metrics == nil {
		return nil, errors.New("metrics collector is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{config: c}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "recall",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        memorySearchToolName,
		Description: memorySearchDescription,
	}, s.handleMemorySearch)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        pipelineMetricsToolName,
		Description: pipelineMetricsDescription,
	}, s.handlePipelineMetrics)

	s.mcpServer = mcpServer

	// Stateless: every request is self-contained.
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

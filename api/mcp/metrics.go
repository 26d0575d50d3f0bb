package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/recall/pkg/metrics"
)

var (
	pipelineMetricsToolName    = "pipeline_metrics"
	pipelineMetricsDescription = "Report recall message processing metrics: messages processed and failed, backend retries, success rate and average retries per message."
)

// PipelineMetricsInput takes no arguments.
type PipelineMetricsInput struct{}

func (s *Server) handlePipelineMetrics(_ context.Context, _ *mcp.CallToolRequest, _ PipelineMetricsInput) (*mcp.CallToolResult, metrics.Snapshot, error) {
	return jsonResult(s.config.Metrics.Get())
}

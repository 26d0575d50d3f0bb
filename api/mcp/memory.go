package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/recall/pkg/memory"
)

var (
	memorySearchToolName    = "memory_search"
	memorySearchDescription = "Search the long-term memories recall holds about a user within a group. Returns the most relevant stored facts for the query, most relevant first."
)

// MemorySearchInput represents the input arguments for the memory_search tool.
type MemorySearchInput struct {
	UserID  string `json:"user_id" jsonschema:"the user whose memories to search"`
	GroupID string `json:"group_id,omitempty" jsonschema:"the group or chat the memories belong to"`
	Query   string `json:"query" jsonschema:"the text to find relevant memories for"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of memories to return (default: 5)"`
}

// MemorySearchOutput is the structured output of a memory search.
type MemorySearchOutput struct {
	Query    string        `json:"query"`
	Memories []memory.Item `json:"memories"`
	Count    int           `json:"count"`

	// Rendered is the numbered list the query handler would put in the
	// system prompt.
	Rendered string `json:"rendered"`
}

func (s *Server) handleMemorySearch(ctx context.Context, _ *mcp.CallToolRequest, input MemorySearchInput) (*mcp.CallToolResult, MemorySearchOutput, error) {
	if input.UserID == "" || input.Query == "" {
		return toolError("user_id and query are required"), MemorySearchOutput{}, nil
	}

	s.config.Logger.Debug("MCP memory search", "user_id", input.UserID, "group_id", input.GroupID, "limit", input.Limit)

	items := s.config.Retriever.Search(ctx, input.UserID, input.GroupID, input.Query, input.Limit)
	if items == nil {
		items = []memory.Item{}
	}

	output := MemorySearchOutput{
		Query:    input.Query,
		Memories: items,
		Count:    len(items),
		Rendered: memory.Render(items),
	}

	return jsonResult(output)
}

// toolError reports a tool failure to the MCP client.
func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}

// jsonResult returns output as structured content plus a serialized JSON
// text block for clients that only read text.
func jsonResult[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero T
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

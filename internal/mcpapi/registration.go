// Package mcpapi exposes the agent's status and control actions as MCP
// tools over the streamable HTTP transport.
package mcpapi

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/srt-streamer-agent/internal/safety"
)

// Registration pairs an MCP tool definition with its handler function.
type Registration struct {
	Tool    mcp.Tool
	Handler server.ToolHandlerFunc
}

// RegisterAll adds every registration to s.
func RegisterAll(s *server.MCPServer, registrations []Registration) {
	for _, r := range registrations {
		s.AddTool(r.Tool, r.Handler)
	}
}

// NewServer returns an MCP server with every tool registered.
func NewServer(version string, registrations []Registration) *server.MCPServer {
	s := server.NewMCPServer("srt-streamer-agent", version, server.WithToolCapabilities(false))
	RegisterAll(s, registrations)
	return s
}

// jsonResult marshals v to indented JSON.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error marshaling result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

func errorResult(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultText("error: " + msg)
}

// confirmPrompt issues a token and tells the caller how to use it.
func confirmPrompt(confirm *safety.ConfirmationTracker, tool, target, description string) *mcp.CallToolResult {
	token := confirm.RequestConfirmation(tool, target)
	subject := tool
	if target != "" {
		subject = fmt.Sprintf("%s on %q", tool, target)
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Confirmation required for %s.\n\n%s\n\nTo proceed, call %s again with confirmation_token=%q.",
		subject, description, tool, token,
	))
}

package operation

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server with the calendar authorization tools
// registered. Panics inside tool handlers are recovered by the server.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"gcal-oauth",
		version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
		server.WithRecovery(),
	)
	RegisterAuthTool(s)
	return s
}

package operation

import (
	"github.com/go-training/gcal-oauth/pkg/operation/auth"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

/*
RegisterAuthTool registers the calendar authorization tools to the specified MCPServer instance.

Parameters:
  - s: Pointer to the MCPServer instance where the tools will be registered.

This function registers authorize_calendar and revoke_local_token as write operations
and token_status as a read operation. The handlers expect an auth.Session in the context.
*/
func RegisterAuthTool(s *server.MCPServer) {
	s.AddTools(AuthTools().Tools()...)
}

// AuthTools returns the calendar authorization tools.
func AuthTools() *Tool {
	tool := &Tool{}

	tool.RegisterWrite(server.ServerTool{
		Tool:    auth.AuthorizeCalendarTool,
		Handler: auth.HandleAuthorizeCalendarTool,
	})
	tool.RegisterWrite(server.ServerTool{
		Tool:    auth.RevokeLocalTokenTool,
		Handler: auth.HandleRevokeLocalTokenTool,
	})
	tool.RegisterRead(server.ServerTool{
		Tool:    auth.TokenStatusTool,
		Handler: auth.HandleTokenStatusTool,
	})

	return tool
}

// Tool collects server tools split into write and read operations. Read
// tools are annotated as read-only so hosts can call them without asking
// the user for confirmation.
type Tool struct {
	write []server.ServerTool
	read  []server.ServerTool
}

// RegisterWrite registers a tool that changes local state.
func (t *Tool) RegisterWrite(s server.ServerTool) {
	s.Tool.Annotations.ReadOnlyHint = mcp.ToBoolPtr(false)
	t.write = append(t.write, s)
}

// RegisterRead registers a tool without side effects.
func (t *Tool) RegisterRead(s server.ServerTool) {
	s.Tool.Annotations.ReadOnlyHint = mcp.ToBoolPtr(true)
	t.read = append(t.read, s)
}

// Tools returns the write tools followed by the read tools.
func (t *Tool) Tools() []server.ServerTool {
	tools := make([]server.ServerTool, 0, len(t.write)+len(t.read))
	tools = append(tools, t.write...)
	tools = append(tools, t.read...)
	return tools
}

package operation

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTool_WriteBeforeRead(t *testing.T) {
	tool := &Tool{}
	tool.RegisterRead(server.ServerTool{Tool: mcp.NewTool("read_one")})
	tool.RegisterWrite(server.ServerTool{Tool: mcp.NewTool("write_one")})
	tool.RegisterRead(server.ServerTool{Tool: mcp.NewTool("read_two")})

	got := tool.Tools()
	want := []string{"write_one", "read_one", "read_two"}
	require.Len(t, got, len(want))
	for i, name := range want {
		assert.Equal(t, name, got[i].Tool.Name)
		readOnly := got[i].Tool.Annotations.ReadOnlyHint
		require.NotNil(t, readOnly, "tool %q", name)
		assert.Equal(t, i > 0, *readOnly, "tool %q ReadOnlyHint", name)
	}
}

func TestAuthTools(t *testing.T) {
	tools := AuthTools().Tools()
	want := []string{"authorize_calendar", "revoke_local_token", "token_status"}
	require.Len(t, tools, len(want))
	for i, name := range want {
		assert.Equal(t, name, tools[i].Tool.Name)
		assert.NotNil(t, tools[i].Handler, "tool %q has no handler", name)
	}
}

func TestNewServer(t *testing.T) {
	assert.NotNil(t, NewServer("test"))
}

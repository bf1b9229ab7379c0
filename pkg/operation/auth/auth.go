// Package auth provides MCP tools that drive the calendar authorization
// flow and inspect the stored tokens.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-training/gcal-oauth/pkg/authflow"
	"github.com/go-training/gcal-oauth/pkg/core"
	"github.com/go-training/gcal-oauth/pkg/session"

	"github.com/mark3labs/mcp-go/mcp"
)

// Session is what the tools need from a token session.
type Session interface {
	Authorize(ctx context.Context) (*core.TokenSet, error)
	Begin(ctx context.Context) (*authflow.Flow, error)
	Status(ctx context.Context) (session.Status, error)
	Revoke(ctx context.Context) error
}

// SessionKey is a custom context key type for storing the Session in context.
type SessionKey struct{}

// WithSession returns a new context with the provided Session set.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, SessionKey{}, s)
}

// SessionFromContext retrieves the Session from the context.
func SessionFromContext(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(SessionKey{}).(Session)
	if !ok {
		return nil, errors.New("missing session")
	}
	return s, nil
}

var AuthorizeCalendarTool = mcp.NewTool("authorize_calendar",
	mcp.WithDescription(`Authorize Calendar Tool

Description:
  Starts the Google sign-in flow that grants read-only access to calendars and task lists.
  A local callback listener is started and the consent page is opened in the user's browser.

Input Parameters:
  - wait (boolean, optional): Block until the user finished the browser step. Defaults to false,
    in which case the consent URL is returned immediately and the tokens are stored once the
    user completes the flow.

Output:
  - Without wait: the consent URL and the flow id.
  - With wait: a confirmation once the tokens have been stored.

Error Conditions:
  - Another authorization is already in progress.
  - The local callback port is in use.
  - The user denied access, the redirect carried no code, or the token exchange failed.`),
	mcp.WithBoolean("wait",
		mcp.Description("Wait for the browser step to finish before returning."),
	),
)

var TokenStatusTool = mcp.NewTool("token_status",
	mcp.WithDescription("Show whether calendar tokens are stored, when they expire and the state of any running authorization flow. Secrets are never included."),
)

var RevokeLocalTokenTool = mcp.NewTool("revoke_local_token",
	mcp.WithDescription("Delete the locally stored calendar tokens. The grant at the provider is not revoked."),
)

// HandleAuthorizeCalendarTool starts a flow, optionally waiting for it.
func HandleAuthorizeCalendarTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := core.LoggerFromCtx(ctx)
	s, err := SessionFromContext(ctx)
	if err != nil {
		return nil, err
	}

	wait, _ := req.GetArguments()["wait"].(bool)
	if wait {
		logger.Info("Handling authorize_calendar tool", "wait", true)
		if _, err := s.Authorize(ctx); err != nil {
			return mcp.NewToolResultError(core.Summary(err)), nil
		}
		return mcp.NewToolResultText(core.Summary(nil)), nil
	}

	f, err := s.Begin(ctx)
	if err != nil {
		return mcp.NewToolResultError(core.Summary(err)), nil
	}
	if core.FlowIDFromContext(ctx) != f.ID() {
		logger = logger.With("flow_id", f.ID())
	}
	logger.Info("Handling authorize_calendar tool")
	return mcp.NewToolResultText(fmt.Sprintf(
		"Open the following URL in your browser to grant calendar access:\n%s\n\nFlow ID: %s",
		f.AuthURL(), f.ID(),
	)), nil
}

// HandleTokenStatusTool reports the session status as JSON.
func HandleTokenStatusTool(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, err := SessionFromContext(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

// HandleRevokeLocalTokenTool deletes the stored record.
func HandleRevokeLocalTokenTool(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, err := SessionFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Revoke(ctx); err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return mcp.NewToolResultText("No local token stored."), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	core.LoggerFromCtx(ctx).Info("Handling revoke_local_token tool")
	return mcp.NewToolResultText("Local token deleted."), nil
}

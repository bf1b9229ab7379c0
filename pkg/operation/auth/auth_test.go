package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/go-training/gcal-oauth/pkg/authflow"
	"github.com/go-training/gcal-oauth/pkg/core"
	"github.com/go-training/gcal-oauth/pkg/exchange"
	"github.com/go-training/gcal-oauth/pkg/loopback"
	"github.com/go-training/gcal-oauth/pkg/session"
	"github.com/go-training/gcal-oauth/pkg/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type instantListener struct {
	outcome loopback.Outcome
}

func (l instantListener) Await(context.Context) (loopback.Outcome, error) { return l.outcome, nil }
func (l instantListener) Close() error                                    { return nil }

type fixedExchanger struct{}

func (fixedExchanger) AuthCodeURL(core.Credentials) string { return "https://provider.test/auth" }

func (fixedExchanger) Exchange(context.Context, string, core.Credentials) (*core.TokenSet, error) {
	return &core.TokenSet{AccessToken: "A", RefreshToken: "R", Expiry: time.Now().Add(time.Hour)}, nil
}

func newSessionContext(t *testing.T, outcome loopback.Outcome) (context.Context, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemoryStore()
	s := session.New(session.Options{
		Credentials: core.Credentials{ClientID: "client-id", ClientSecret: "secret"},
		Store:       mem,
		Coordinator: authflow.New(fixedExchanger{},
			authflow.WithListenerFactory(func() (authflow.Listener, error) {
				return instantListener{outcome: outcome}, nil
			}),
			authflow.WithBrowserOpener(func(context.Context, string) error { return nil }),
			authflow.WithLogger(logger),
		),
		Exchange: exchange.New(exchange.WithLogger(logger)),
		Logger:   logger,
	})
	return WithSession(context.Background(), s), mem
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	txt, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return txt.Text
}

func authorized() loopback.Outcome {
	return loopback.Outcome{Kind: loopback.OutcomeAuthorized, Code: "c"}
}

func TestHandleAuthorizeCalendarTool_Wait(t *testing.T) {
	ctx, mem := newSessionContext(t, authorized())

	res, err := HandleAuthorizeCalendarTool(ctx, callRequest("authorize_calendar", map[string]any{"wait": true}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Authorization successful.", resultText(t, res))

	record, err := mem.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", record.AccessToken)
}

func TestHandleAuthorizeCalendarTool_Denied(t *testing.T) {
	ctx, _ := newSessionContext(t, loopback.Outcome{Kind: loopback.OutcomeDenied, Reason: "access_denied"})

	res, err := HandleAuthorizeCalendarTool(ctx, callRequest("authorize_calendar", map[string]any{"wait": true}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "Authorization was denied: access_denied", resultText(t, res))
}

func TestHandleAuthorizeCalendarTool_Begin(t *testing.T) {
	ctx, mem := newSessionContext(t, authorized())

	res, err := HandleAuthorizeCalendarTool(ctx, callRequest("authorize_calendar", nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	text := resultText(t, res)
	assert.Contains(t, text, "https://provider.test/auth")
	assert.Contains(t, text, "Flow ID: ")

	require.Eventually(t, func() bool {
		_, err := mem.Load(context.Background())
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)
}

func TestHandleAuthorizeCalendarTool_BeginUsesRequestFlowID(t *testing.T) {
	ctx, mem := newSessionContext(t, authorized())
	ctx, id := core.WithFlowID(ctx)

	res, err := HandleAuthorizeCalendarTool(ctx, callRequest("authorize_calendar", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "Flow ID: "+id)

	require.Eventually(t, func() bool {
		_, err := mem.Load(context.Background())
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)
}

func TestHandleTokenStatusTool(t *testing.T) {
	ctx, mem := newSessionContext(t, authorized())
	require.NoError(t, mem.Save(context.Background(), core.NewRecord(
		core.Credentials{ClientID: "client-id-123456", ClientSecret: "secret"},
		core.TokenSet{AccessToken: "access-token-value", RefreshToken: "refresh-token-value"},
	)))

	res, err := HandleTokenStatusTool(ctx, callRequest("token_status", nil))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.NotContains(t, text, "access-token-value")
	assert.NotContains(t, text, "refresh-token-value")

	var st session.Status
	require.NoError(t, json.Unmarshal([]byte(text), &st))
	assert.True(t, st.Authorized)
	assert.True(t, st.HasRefreshToken)
	assert.Equal(t, "idle", st.FlowState)
	assert.True(t, strings.HasPrefix(st.ClientID, "cli"))
}

func TestHandleRevokeLocalTokenTool(t *testing.T) {
	ctx, mem := newSessionContext(t, authorized())
	require.NoError(t, mem.Save(context.Background(), core.NewRecord(
		core.Credentials{ClientID: "id", ClientSecret: "secret"},
		core.TokenSet{AccessToken: "A"},
	)))

	res, err := HandleRevokeLocalTokenTool(ctx, callRequest("revoke_local_token", nil))
	require.NoError(t, err)
	assert.Equal(t, "Local token deleted.", resultText(t, res))

	res, err = HandleRevokeLocalTokenTool(ctx, callRequest("revoke_local_token", nil))
	require.NoError(t, err)
	assert.Equal(t, "No local token stored.", resultText(t, res))
}

func TestHandlers_MissingSession(t *testing.T) {
	ctx := context.Background()
	_, err := HandleAuthorizeCalendarTool(ctx, callRequest("authorize_calendar", nil))
	assert.Error(t, err)
	_, err = HandleTokenStatusTool(ctx, callRequest("token_status", nil))
	assert.Error(t, err)
	_, err = HandleRevokeLocalTokenTool(ctx, callRequest("revoke_local_token", nil))
	assert.Error(t, err)
}

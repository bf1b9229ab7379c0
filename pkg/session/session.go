// Package session ties the authorization flow, the refresh observer and a
// token store together for a single user identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-training/gcal-oauth/pkg/authflow"
	"github.com/go-training/gcal-oauth/pkg/core"
	"github.com/go-training/gcal-oauth/pkg/exchange"
	"github.com/go-training/gcal-oauth/pkg/refresh"

	"golang.org/x/oauth2"
)

// Options are the session collaborators. Observer and Logger are optional.
type Options struct {
	Credentials core.Credentials
	Store       core.Store
	Coordinator *authflow.Coordinator
	Exchange    *exchange.Client
	Observer    *refresh.Observer
	Logger      *slog.Logger
}

// Session persists tokens issued by flows and by silent refreshes.
type Session struct {
	creds       core.Credentials
	store       core.Store
	coordinator *authflow.Coordinator
	exchange    *exchange.Client
	observer    *refresh.Observer
	logger      *slog.Logger
}

// New builds a session and registers its refresh callback on the observer.
func New(opts Options) *Session {
	s := &Session{
		creds:       opts.Credentials,
		store:       opts.Store,
		coordinator: opts.Coordinator,
		exchange:    opts.Exchange,
		observer:    opts.Observer,
		logger:      opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.observer == nil {
		s.observer = refresh.NewObserver(refresh.WithLogger(s.logger))
	}
	s.observer.OnRefresh(s.persistRefresh)
	return s
}

// Authorize runs a flow to completion and saves the issued tokens.
func (s *Session) Authorize(ctx context.Context) (*core.TokenSet, error) {
	tokens, err := s.coordinator.Authorize(ctx, s.creds)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, tokens); err != nil {
		return tokens, err
	}
	return tokens, nil
}

// Begin starts a flow and returns at once; the tokens are saved in the
// background when the flow resolves. The flow outlives ctx and is only
// stopped by Flow.Cancel or its timeout.
func (s *Session) Begin(ctx context.Context) (*authflow.Flow, error) {
	ctx = context.WithoutCancel(ctx)
	f, err := s.coordinator.StartFlow(ctx, s.creds)
	if err != nil {
		return nil, err
	}
	go func() {
		tokens, err := f.Result()
		if err != nil {
			return
		}
		if err := s.save(ctx, tokens); err != nil {
			s.logger.Error("Failed to save tokens", "flow_id", f.ID(), "err", err)
		}
	}()
	return f, nil
}

func (s *Session) save(ctx context.Context, tokens *core.TokenSet) error {
	if err := s.store.Save(ctx, core.NewRecord(s.creds, *tokens)); err != nil {
		return fmt.Errorf("save token record: %w", err)
	}
	return nil
}

// persistRefresh merges a refreshed set into the stored record.
func (s *Session) persistRefresh(tokens core.TokenSet) error {
	ctx := context.Background()
	record, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, core.ErrRecordNotFound):
		record = core.NewRecord(s.creds, tokens)
	case err != nil:
		return fmt.Errorf("load token record: %w", err)
	default:
		record.Apply(tokens)
	}
	if err := s.store.Save(ctx, record); err != nil {
		return fmt.Errorf("save token record: %w", err)
	}
	return nil
}

// TokenSource returns a refreshing source for the stored tokens. Refreshed
// tokens are written back to the store.
func (s *Session) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	record, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load token record: %w", err)
	}
	creds := record.Credentials()
	if creds.Validate() != nil {
		creds = s.creds
	}
	initial := record.TokenSet()
	return s.observer.TokenSource(s.exchange.TokenSource(ctx, creds, initial), initial), nil
}

// Token returns a valid token set, refreshing if needed.
func (s *Session) Token(ctx context.Context) (*core.TokenSet, error) {
	ts, err := s.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	tokens := core.TokenSetFromOAuth2(tok)
	return &tokens, nil
}

// HTTPClient returns a client that authenticates requests with the stored
// tokens.
func (s *Session) HTTPClient(ctx context.Context) (*http.Client, error) {
	ts, err := s.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// Revoke deletes the local record. The provider grant is left untouched.
func (s *Session) Revoke(ctx context.Context) error {
	if err := s.store.Delete(ctx); err != nil {
		return fmt.Errorf("delete token record: %w", err)
	}
	s.logger.Info("Local token record deleted")
	return nil
}

// Status describes the stored tokens and the current flow.
type Status struct {
	Authorized      bool      `json:"authorized"`
	ClientID        string    `json:"client_id,omitempty"`
	HasRefreshToken bool      `json:"has_refresh_token"`
	Expiry          time.Time `json:"expiry,omitempty"`
	Expired         bool      `json:"expired"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
	FlowState       string    `json:"flow_state"`
	FlowID          string    `json:"flow_id,omitempty"`
	AuthURL         string    `json:"auth_url,omitempty"`
}

// Status reports the stored record with secrets masked.
func (s *Session) Status(ctx context.Context) (Status, error) {
	st := Status{FlowState: s.coordinator.State().String()}
	if f := s.coordinator.Current(); f != nil {
		st.FlowID = f.ID()
		st.AuthURL = f.AuthURL()
	}

	record, err := s.store.Load(ctx)
	if errors.Is(err, core.ErrRecordNotFound) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("load token record: %w", err)
	}

	st.Authorized = record.AccessToken != ""
	st.ClientID = core.MaskSecret(record.ClientID)
	st.HasRefreshToken = record.RefreshToken != ""
	st.Expiry = record.Expiry
	st.Expired = !record.Expiry.IsZero() && time.Now().After(record.Expiry)
	if record.UpdatedAt > 0 {
		st.UpdatedAt = time.Unix(record.UpdatedAt, 0)
	}
	return st, nil
}

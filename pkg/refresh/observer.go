// Package refresh tells the caller about tokens minted by silent refreshes so
// they can be persisted.
package refresh

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-training/gcal-oauth/pkg/core"

	"golang.org/x/oauth2"
)

// Results reported to a Recorder.
const (
	ResultNotified      = "notified"
	ResultCallbackError = "callback_error"
	ResultNoCallback    = "no_callback"
	ResultRefreshError  = "refresh_error"
)

// Callback persists a refreshed token set.
type Callback func(tokens core.TokenSet) error

// Recorder observes refresh notifications.
type Recorder interface {
	RefreshObserved(result string)
}

// Option configures an Observer.
type Option func(*Observer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Observer) { o.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Observer) { o.recorder = r }
}

// Observer holds at most one refresh callback.
type Observer struct {
	logger   *slog.Logger
	recorder Recorder

	mu       sync.RWMutex
	callback Callback
}

// NewObserver creates an observer without a callback.
func NewObserver(opts ...Option) *Observer {
	o := &Observer{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnRefresh registers cb, replacing any previous callback. A nil cb
// unregisters.
func (o *Observer) OnRefresh(cb Callback) {
	o.mu.Lock()
	o.callback = cb
	o.mu.Unlock()
}

// Notify hands tokens to the registered callback on the calling goroutine.
// Callback errors and panics are logged and never reach the caller.
func (o *Observer) Notify(tokens core.TokenSet) {
	o.mu.RLock()
	cb := o.callback
	o.mu.RUnlock()

	if cb == nil {
		o.logger.Debug("Token refreshed with no callback registered")
		o.record(ResultNoCallback)
		return
	}

	if err := o.invoke(cb, tokens); err != nil {
		o.logger.Error("Failed to persist refreshed tokens",
			"err", err,
			"access_token", core.MaskSecret(tokens.AccessToken))
		o.record(ResultCallbackError)
		return
	}

	o.logger.Info("Refreshed tokens persisted",
		"has_refresh_token", tokens.HasRefreshToken(),
		"expiry", tokens.Expiry)
	o.record(ResultNotified)
}

func (o *Observer) invoke(cb Callback, tokens core.TokenSet) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh callback panicked: %v", r)
		}
	}()
	return cb(tokens)
}

func (o *Observer) record(result string) {
	if o.recorder != nil {
		o.recorder.RefreshObserved(result)
	}
}

// TokenSource wraps base so that every newly minted access token is passed
// to Notify exactly once. initial is the set the caller already holds; a
// refreshed set without a refresh token inherits the previous one.
//
// Concurrent callers share one refresh. The callback runs outside the
// source's lock, so callers that get a cached token never wait on it;
// notifications are delivered in refresh order and a set superseded by a
// newer refresh is dropped.
func (o *Observer) TokenSource(base oauth2.TokenSource, initial core.TokenSet) oauth2.TokenSource {
	return &notifyingSource{base: base, observer: o, last: initial}
}

type notifyingSource struct {
	base     oauth2.TokenSource
	observer *Observer

	mu   sync.Mutex
	last core.TokenSet
	seq  uint64

	notifyMu sync.Mutex
	notified uint64
}

func (s *notifyingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	tok, err := s.base.Token()
	if err != nil {
		s.mu.Unlock()
		s.observer.logger.Warn("Token refresh failed", "err", err)
		s.observer.record(ResultRefreshError)
		return nil, err
	}
	if tok.AccessToken == s.last.AccessToken {
		s.mu.Unlock()
		return tok, nil
	}

	next := core.TokenSetFromOAuth2(tok)
	if next.RefreshToken == "" {
		next.RefreshToken = s.last.RefreshToken
	}
	s.last = next
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if seq < s.notified {
		return tok, nil
	}
	s.notified = seq
	s.observer.Notify(next)
	return tok, nil
}

package authflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-training/gcal-oauth/pkg/core"
)

// State is a coordinator or flow state.
type State int32

const (
	Idle State = iota
	Listening
	AwaitingExchange
	Resolved
	Rejected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case AwaitingExchange:
		return "awaiting_exchange"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

func (s State) inProgress() bool {
	return s == Listening || s == AwaitingExchange
}

// Flow is the handle of one authorization attempt. It completes exactly
// once, with either a token set or an error.
type Flow struct {
	id        string
	authURL   string
	startedAt time.Time
	cancel    context.CancelCauseFunc

	state atomic.Int32

	once   sync.Once
	done   chan struct{}
	tokens *core.TokenSet
	err    error
}

func newFlow(id, authURL string, cancel context.CancelCauseFunc) *Flow {
	f := &Flow{
		id:        id,
		authURL:   authURL,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	f.state.Store(int32(Listening))
	return f
}

// ID returns the flow correlation id.
func (f *Flow) ID() string { return f.id }

// AuthURL returns the consent URL the user must visit.
func (f *Flow) AuthURL() string { return f.authURL }

// StartedAt returns when the flow was started.
func (f *Flow) StartedAt() time.Time { return f.startedAt }

// State returns the flow state; Resolved or Rejected once Done is closed.
func (f *Flow) State() State { return State(f.state.Load()) }

func (f *Flow) setState(s State) { f.state.Store(int32(s)) }

// Done is closed when the flow completes.
func (f *Flow) Done() <-chan struct{} { return f.done }

// Cancel aborts the flow. It rejects with core.ErrFlowCancelled unless the
// flow already completed.
func (f *Flow) Cancel() {
	f.cancel(core.ErrFlowCancelled)
}

// Wait blocks until the flow completes or ctx is done. Giving up on ctx does
// not cancel the flow.
func (f *Flow) Wait(ctx context.Context) (*core.TokenSet, error) {
	select {
	case <-f.done:
		return f.tokens, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result blocks until the flow completes and returns its outcome.
func (f *Flow) Result() (*core.TokenSet, error) {
	<-f.done
	return f.tokens, f.err
}

func (f *Flow) complete(tokens *core.TokenSet, err error) {
	f.once.Do(func() {
		f.tokens = tokens
		f.err = err
		close(f.done)
	})
}

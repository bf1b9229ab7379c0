// Package authflow runs the browser authorization-code flow and makes sure
// only one flow is outstanding at a time.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-training/gcal-oauth/pkg/core"
	"github.com/go-training/gcal-oauth/pkg/loopback"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/go-training/gcal-oauth/pkg/authflow"

// Listener receives the provider redirect.
type Listener interface {
	Await(ctx context.Context) (loopback.Outcome, error)
	Close() error
}

// ListenerFactory binds a fresh listener for one flow. A failure to bind
// must match core.ErrPortUnavailable.
type ListenerFactory func() (Listener, error)

// Exchanger builds the consent URL and redeems authorization codes.
type Exchanger interface {
	AuthCodeURL(creds core.Credentials) string
	Exchange(ctx context.Context, code string, creds core.Credentials) (*core.TokenSet, error)
}

// Recorder observes finished flows.
type Recorder interface {
	FlowFinished(kind core.ErrorKind, elapsed time.Duration)
}

// LoopbackListener returns a factory binding a loopback.Server per flow.
func LoopbackListener(opts ...loopback.Option) ListenerFactory {
	return func() (Listener, error) {
		srv := loopback.New(opts...)
		if err := srv.Bind(); err != nil {
			return nil, err
		}
		return srv, nil
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithListenerFactory replaces the default loopback listener.
func WithListenerFactory(f ListenerFactory) Option {
	return func(c *Coordinator) { c.listen = f }
}

// WithBrowserOpener replaces the system browser launcher.
func WithBrowserOpener(open BrowserOpener) Option {
	return func(c *Coordinator) { c.openBrowser = open }
}

// WithTimeout rejects a flow with core.ErrTimedOut when no callback arrives
// within d. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithTracerProvider sets the tracer provider used for flow spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) { c.tracer = tp.Tracer(tracerName) }
}

// Coordinator owns the flow state machine:
// Idle -> Listening -> AwaitingExchange -> Resolved | Rejected -> Idle.
type Coordinator struct {
	exchanger   Exchanger
	listen      ListenerFactory
	openBrowser BrowserOpener
	timeout     time.Duration
	logger      *slog.Logger
	recorder    Recorder
	tracer      trace.Tracer

	mu      sync.Mutex
	state   State
	current *Flow
}

// New creates a coordinator that exchanges codes through exchanger.
func New(exchanger Exchanger, opts ...Option) *Coordinator {
	c := &Coordinator{
		exchanger:   exchanger,
		listen:      LoopbackListener(),
		openBrowser: OpenBrowser,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		state:       Idle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the coordinator state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the outstanding flow, or nil.
func (c *Coordinator) Current() *Flow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// StartFlow binds the listener and starts a flow in the background. It
// returns without waiting for the redirect. Invalid credentials, a flow
// already in progress and an unavailable port are reported here; every
// later failure is reported by Flow.Wait. A flow id already carried by ctx
// becomes the flow's id.
func (c *Coordinator) StartFlow(ctx context.Context, creds core.Credentials) (*Flow, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state.inProgress() {
		c.mu.Unlock()
		c.logger.Warn("Authorization flow already in progress")
		return nil, core.ErrFlowAlreadyInProgress
	}
	c.state = Listening
	c.mu.Unlock()

	listener, err := c.listen()
	if err != nil {
		c.setState(Idle)
		if !errors.Is(err, core.ErrPortUnavailable) {
			err = fmt.Errorf("%w: %v", core.ErrPortUnavailable, err)
		}
		c.logger.Error("Failed to start loopback listener", "err", err)
		c.record(err, 0)
		return nil, err
	}

	flowCtx, id := ctx, core.FlowIDFromContext(ctx)
	if id == "" {
		flowCtx, id = core.WithFlowID(ctx)
	}
	flowCtx, cancel := context.WithCancelCause(flowCtx)
	f := newFlow(id, c.exchanger.AuthCodeURL(creds), cancel)

	c.mu.Lock()
	c.current = f
	c.mu.Unlock()

	go c.run(flowCtx, f, creds, listener)
	return f, nil
}

// Authorize runs a flow to completion. Cancelling ctx cancels the flow.
func (c *Coordinator) Authorize(ctx context.Context, creds core.Credentials) (*core.TokenSet, error) {
	f, err := c.StartFlow(ctx, creds)
	if err != nil {
		return nil, err
	}
	<-f.Done()
	return f.Result()
}

func (c *Coordinator) run(ctx context.Context, f *Flow, creds core.Credentials, listener Listener) {
	start := time.Now()
	logger := c.logger.With("flow_id", f.ID())
	ctx, span := c.tracer.Start(ctx, "authflow.flow",
		trace.WithAttributes(attribute.String("flow.id", f.ID())))

	closeListener := sync.OnceValue(listener.Close)

	var (
		tokens *core.TokenSet
		err    error
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Authorization flow panicked", "panic", r)
			tokens, err = nil, fmt.Errorf("authorization flow panicked: %v", r)
		}
		if cerr := closeListener(); cerr != nil {
			logger.Warn("Failed to close loopback listener", "err", cerr)
		}
		f.cancel(nil)
		endSpan(span, err)
		c.finish(f, tokens, err, time.Since(start), logger)
	}()

	tokens, err = c.execute(ctx, f, creds, listener, closeListener, logger)
}

func (c *Coordinator) execute(
	ctx context.Context,
	f *Flow,
	creds core.Credentials,
	listener Listener,
	closeListener func() error,
	logger *slog.Logger,
) (*core.TokenSet, error) {
	logger.Info("Starting authorization flow", "client_id", core.MaskSecret(creds.ClientID))

	if err := c.openBrowser(ctx, f.AuthURL()); err != nil {
		logger.Error("Failed to open browser", "err", err)
		logger.Info("Please open the following URL in your browser", "url", f.AuthURL())
	}

	awaitCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		awaitCtx, cancel = context.WithTimeoutCause(ctx, c.timeout, core.ErrTimedOut)
		defer cancel()
	}

	outcome, err := listener.Await(awaitCtx)
	if err != nil {
		_ = closeListener()
		return nil, interruption(awaitCtx, err)
	}
	addFlowAttributes(ctx, logger, attribute.String("flow.callback", outcome.Kind.String()))

	switch outcome.Kind {
	case loopback.OutcomeAuthorized:
		c.transition(f, AwaitingExchange)
		_ = closeListener()
		tokens, err := c.exchanger.Exchange(ctx, outcome.Code, creds)
		if err != nil {
			if ctx.Err() != nil {
				return nil, core.ErrFlowCancelled
			}
			var exErr *core.ExchangeError
			if !errors.As(err, &exErr) {
				err = &core.ExchangeError{Cause: err}
			}
			return nil, err
		}
		if tokens == nil || tokens.AccessToken == "" {
			return nil, &core.ExchangeError{Cause: errors.New("token response missing access token")}
		}
		return tokens, nil
	case loopback.OutcomeDenied:
		_ = closeListener()
		return nil, &core.DeniedError{Reason: outcome.Reason}
	case loopback.OutcomeMalformed:
		_ = closeListener()
		return nil, core.ErrMalformedCallback
	default:
		return nil, interruption(awaitCtx, nil)
	}
}

// interruption maps a listener that stopped without a callback onto the
// error taxonomy.
func interruption(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), core.ErrTimedOut) {
		return core.ErrTimedOut
	}
	if ctx.Err() != nil || err == nil {
		return core.ErrFlowCancelled
	}
	return fmt.Errorf("await callback: %w", err)
}

func (c *Coordinator) transition(f *Flow, s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	f.setState(s)
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// finish publishes the terminal state, returns the coordinator to Idle and
// only then completes the flow, so a caller woken by Wait can start a new
// flow immediately.
func (c *Coordinator) finish(f *Flow, tokens *core.TokenSet, err error, elapsed time.Duration, logger *slog.Logger) {
	terminal := Resolved
	if err != nil {
		terminal = Rejected
		tokens = nil
	}
	c.transition(f, terminal)

	if err != nil {
		logger.Error("Authorization flow failed", "err", err, "kind", string(core.KindOf(err)), "elapsed", elapsed)
	} else {
		logger.Info("Authorization flow succeeded",
			"access_token", core.MaskSecret(tokens.AccessToken),
			"has_refresh_token", tokens.HasRefreshToken(),
			"elapsed", elapsed)
	}
	c.record(err, elapsed)

	c.mu.Lock()
	c.state = Idle
	if c.current == f {
		c.current = nil
	}
	c.mu.Unlock()

	f.complete(tokens, err)
}

func (c *Coordinator) record(err error, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	c.recorder.FlowFinished(core.KindOf(err), elapsed)
}

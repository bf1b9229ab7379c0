// Package loopback implements the short-lived HTTP listener that captures
// the OAuth provider's redirect on the user's machine.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-training/gcal-oauth/pkg/core"

	sloggin "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
)

const (
	// DefaultPort must match the redirect URI registered with the provider.
	DefaultPort = 8080
	// CallbackPath is the only path that can resolve a flow.
	CallbackPath = "/callback"
	// DefaultHost is the host used in the redirect URI.
	DefaultHost = "localhost"
	// DefaultBindHost is the interface the listener binds to.
	DefaultBindHost = "127.0.0.1"

	defaultShutdownTimeout = 5 * time.Second
)

var (
	// ErrServerClosed is returned by Bind after Close.
	ErrServerClosed = errors.New("loopback server closed")
	// ErrAlreadyBound is returned by a second Bind.
	ErrAlreadyBound = errors.New("loopback server already bound")
	// ErrNotBound is returned by Await before Bind.
	ErrNotBound = errors.New("loopback server not bound")
)

// RedirectURL returns the redirect URI for the given host and port.
func RedirectURL(host string, port int) string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(host, strconv.Itoa(port)), CallbackPath)
}

// Option configures a Server.
type Option func(*Server)

// WithPort sets the listening port. Port 0 picks a free port, which is only
// useful in tests since the provider needs a registered redirect URI.
func WithPort(port int) Option {
	return func(s *Server) { s.port = port }
}

// WithHost sets the host used in RedirectURL.
func WithHost(host string) Option {
	return func(s *Server) { s.host = host }
}

// WithBindHost sets the interface the listener binds to.
func WithBindHost(host string) Option {
	return func(s *Server) { s.bindHost = host }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithShutdownTimeout bounds how long Close waits for in-flight responses.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

// Server accepts exactly one qualifying redirect per flow and reports its
// Outcome once. It closes itself right after reporting.
type Server struct {
	host            string
	bindHost        string
	port            int
	logger          *slog.Logger
	shutdownTimeout time.Duration
	engine          *gin.Engine

	mu         sync.Mutex
	state      Lifecycle
	closing    bool
	listener   net.Listener
	httpServer *http.Server
	serveDone  chan struct{}

	claimed   atomic.Bool
	outcome   chan Outcome
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New creates an unbound server.
func New(opts ...Option) *Server {
	s := &Server{
		host:            DefaultHost,
		bindHost:        DefaultBindHost,
		port:            DefaultPort,
		logger:          slog.Default(),
		shutdownTimeout: defaultShutdownTimeout,
		state:           NotStarted,
		outcome:         make(chan Outcome, 1),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "loopback")
	s.engine = s.newEngine()
	return s
}

func (s *Server) newEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(sloggin.SetLogger(sloggin.WithLogger(func(*gin.Context, *slog.Logger) *slog.Logger {
		return s.logger
	})), gin.Recovery())
	engine.SetHTMLTemplate(pageTemplate)
	engine.GET(CallbackPath, s.handleCallback)
	return engine
}

// Bind listens on the configured port. A port already in use is reported
// here as core.ErrPortUnavailable, never from Await.
func (s *Server) Bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return ErrServerClosed
	}
	if s.state == Bound {
		return ErrAlreadyBound
	}

	addr := net.JoinHostPort(s.bindHost, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrPortUnavailable, addr, err)
	}

	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	s.serveDone = make(chan struct{})
	s.state = Bound

	go s.serve(s.httpServer, ln, s.serveDone)

	s.logger.Info("Loopback server listening", "addr", ln.Addr().String(), "redirect_uri", RedirectURL(s.host, s.port))
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Loopback server error", "err", err)
		// unblock any waiter; Close waits on done so it must not run inline
		go s.Close()
	}
}

// Await blocks until the first qualifying callback arrives, the server is
// closed (OutcomeCancelled) or ctx is done.
func (s *Server) Await(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	state, closing := s.state, s.closing
	s.mu.Unlock()
	if state == NotStarted && !closing {
		return Outcome{}, ErrNotBound
	}

	select {
	case o := <-s.outcome:
		return o, nil
	case <-s.done:
		// an outcome reported just before the close still wins
		select {
		case o := <-s.outcome:
			return o, nil
		default:
			return Outcome{Kind: OutcomeCancelled}, nil
		}
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Close stops the listener and releases the port. It is idempotent and safe
// from any state; concurrent callers return only after the port is released.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		srv, serveDone := s.httpServer, s.serveDone
		s.mu.Unlock()

		close(s.done)

		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				s.closeErr = fmt.Errorf("shutdown loopback server: %w", err)
				_ = srv.Close()
			}
			<-serveDone
			s.logger.Debug("Loopback server closed")
		}

		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()
	})
	return s.closeErr
}

// State returns the server lifecycle state.
func (s *Server) State() Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Port returns the configured port, or the bound port after Bind.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Addr returns the listener address, or "" before Bind.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// RedirectURL returns the redirect URI this server answers.
func (s *Server) RedirectURL() string {
	return RedirectURL(s.host, s.Port())
}

func (s *Server) handleCallback(c *gin.Context) {
	c.Header("Connection", "close")

	if !s.claimed.CompareAndSwap(false, true) {
		s.logger.Warn("Ignoring callback after the first one was handled")
		c.HTML(http.StatusConflict, "page", page{
			Title:   "Authorization already handled",
			Message: "This sign-in request has already been processed.",
			CloseMS: failureCloseMS,
		})
		return
	}

	outcome := classify(c.Request.URL.Query())
	switch outcome.Kind {
	case OutcomeAuthorized:
		c.HTML(http.StatusOK, "page", page{
			Title:   "Authorization successful!",
			CloseMS: successCloseMS,
		})
	case OutcomeDenied:
		c.HTML(http.StatusBadRequest, "page", page{
			Title:   "Authorization failed",
			Message: "Authorization failed: " + outcome.Reason,
			CloseMS: failureCloseMS,
		})
	default:
		c.HTML(http.StatusBadRequest, "page", page{
			Title:   "Authorization failed",
			Message: "No authorization code received",
			CloseMS: failureCloseMS,
		})
	}

	s.logger.Info("Callback received", "outcome", outcome.Kind.String())
	s.outcome <- outcome
	go s.Close()
}

// classify checks error before code, so a redirect carrying both is a denial.
func classify(q url.Values) Outcome {
	if reason := q.Get("error"); reason != "" {
		return Outcome{Kind: OutcomeDenied, Reason: reason}
	}
	if code := q.Get("code"); code != "" {
		return Outcome{Kind: OutcomeAuthorized, Code: code}
	}
	return Outcome{Kind: OutcomeMalformed}
}

const (
	successCloseMS = 2000
	failureCloseMS = 3000
)

type page struct {
	Title   string
	Message string
	CloseMS int
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
  <head><meta charset="utf-8"><title>{{.Title}}</title></head>
  <body>
    <h1>{{.Title}}</h1>
    {{if .Message}}<p>{{.Message}}</p>{{end}}
    <p>You can close this window and return to the application.</p>
    <script>setTimeout(function () { window.close(); }, {{.CloseMS}});</script>
  </body>
</html>
`))

package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/go-training/gcal-oauth/pkg/authflow"
	"github.com/go-training/gcal-oauth/pkg/config"
	"github.com/go-training/gcal-oauth/pkg/core"
	"github.com/go-training/gcal-oauth/pkg/exchange"
	"github.com/go-training/gcal-oauth/pkg/logger"
	"github.com/go-training/gcal-oauth/pkg/loopback"
	"github.com/go-training/gcal-oauth/pkg/metrics"
	"github.com/go-training/gcal-oauth/pkg/refresh"
	"github.com/go-training/gcal-oauth/pkg/session"
	"github.com/go-training/gcal-oauth/pkg/store"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg         config.Config
	logger      *slog.Logger
	store       core.Store
	metrics     *metrics.Metrics
	coordinator *authflow.Coordinator
	session     *session.Session
}

// newApp wires the collaborators. Consent URLs are written to out when the
// browser is disabled.
func newApp(cfg config.Config, out io.Writer) (*app, error) {
	log := logger.NewWithLevel(cfg.LogLevel)

	st, err := store.NewStore(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreType, err)
	}

	m := metrics.New()

	exOpts := []exchange.Option{
		exchange.WithRedirectURL(loopback.RedirectURL(loopback.DefaultHost, cfg.Port)),
		exchange.WithLogger(log),
	}
	if len(cfg.Scopes) > 0 {
		exOpts = append(exOpts, exchange.WithScopes(cfg.Scopes...))
	}
	ex := exchange.New(exOpts...)

	opener := authflow.OpenBrowser
	if cfg.NoBrowser {
		opener = authflow.PrintURL(func(url string) {
			fmt.Fprintf(out, "Open the following URL in your browser:\n\n  %s\n\n", url)
		})
	}

	coordinator := authflow.New(ex,
		authflow.WithListenerFactory(authflow.LoopbackListener(
			loopback.WithPort(cfg.Port),
			loopback.WithLogger(log),
		)),
		authflow.WithBrowserOpener(opener),
		authflow.WithTimeout(cfg.Timeout),
		authflow.WithLogger(log),
		authflow.WithRecorder(m),
	)

	observer := refresh.NewObserver(refresh.WithLogger(log), refresh.WithRecorder(m))

	return &app{
		cfg:         cfg,
		logger:      log,
		store:       st,
		metrics:     m,
		coordinator: coordinator,
		session: session.New(session.Options{
			Credentials: cfg.Credentials(),
			Store:       st,
			Coordinator: coordinator,
			Exchange:    ex,
			Observer:    observer,
			Logger:      log,
		}),
	}, nil
}

// Close cancels a running flow and releases the store.
func (a *app) Close() error {
	if f := a.coordinator.Current(); f != nil {
		f.Cancel()
		<-f.Done()
	}
	return store.Close(a.store)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-training/gcal-oauth/pkg/core"
	"github.com/go-training/gcal-oauth/pkg/operation"
	"github.com/go-training/gcal-oauth/pkg/operation/auth"

	"github.com/appleboy/graceful"
	sloggin "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"
)

func newServeCmd(opts *globalOptions, version string) *cobra.Command {
	var (
		transport string
		addr      string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the authorization tools over MCP",
		Long: `Runs an MCP server with the authorize_calendar, token_status and
revoke_local_token tools.

With --transport http the server also exposes /metrics and /healthz.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport != transportStdio && transport != transportHTTP {
				return fmt.Errorf("invalid transport %q: use stdio or http", transport)
			}

			// consent URLs go through the tool result, never to stdout
			a, err := newApp(opts.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			mcpServer := operation.NewServer(version)
			if transport == transportStdio {
				return serveStdio(a, mcpServer)
			}
			return serveHTTP(a, mcpServer, addr)
		},
	}
	cmd.Flags().StringVarP(&transport, "transport", "t", transportStdio, "transport type (stdio or http)")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8081", "address to listen on for the http transport")
	return cmd
}

// withSession injects the session and a fresh flow id into a tool
// request context.
func (a *app) withSession(ctx context.Context) context.Context {
	ctx, _ = core.WithFlowID(ctx)
	return auth.WithSession(ctx, a.session)
}

func serveStdio(a *app, s *server.MCPServer) error {
	a.logger.Info("Starting MCP server", "transport", transportStdio)
	return server.ServeStdio(s, server.WithStdioContextFunc(a.withSession))
}

func newRouter(a *app, s *server.MCPServer) *gin.Engine {
	mcpHandler := gin.WrapH(server.NewStreamableHTTPServer(s,
		server.WithHeartbeatInterval(30*time.Second),
		server.WithHTTPContextFunc(func(ctx context.Context, _ *http.Request) context.Context {
			return a.withSession(ctx)
		}),
	))

	router := gin.New()
	router.Use(sloggin.SetLogger(sloggin.WithLogger(func(*gin.Context, *slog.Logger) *slog.Logger {
		return a.logger
	})), gin.Recovery(), corsMiddleware())

	router.POST("/mcp", mcpHandler)
	router.GET("/mcp", mcpHandler)
	router.DELETE("/mcp", mcpHandler)

	router.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"flow_state": a.coordinator.State().String(),
		})
	})
	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Mcp-Protocol-Version, Mcp-Session-Id, Content-Type")
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func serveHTTP(a *app, s *server.MCPServer, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      newRouter(a, s),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streamable responses stay open
		IdleTimeout:  60 * time.Second,
	}

	m := graceful.NewManager()
	m.AddRunningJob(func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Serve(ln)
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		a.logger.Info("Shutting down MCP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	m.AddShutdownJob(func() error {
		if f := a.coordinator.Current(); f != nil {
			a.logger.Info("Cancelling authorization flow", "flow_id", f.ID())
			f.Cancel()
		}
		return nil
	})

	a.logger.Info("Starting MCP server", "transport", transportHTTP, "addr", ln.Addr().String())
	<-m.Done()
	return nil
}

package main

import (
	"errors"
	"os"
	"time"

	"github.com/go-training/gcal-oauth/pkg/config"
	"github.com/go-training/gcal-oauth/pkg/core"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (invalid arguments, store failure).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates credentials or a stored token are missing.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the authorization flow was rejected.
	ExitCodeAuthFailed = 3
	// ExitCodeUnavailable indicates the flow could not start: another flow
	// is running or the callback port is in use.
	ExitCodeUnavailable = 4
	// ExitCodeCancelled indicates the user interrupted the flow.
	ExitCodeCancelled = 130
)

// exitCode maps an error onto a semantic exit code for scripting.
func exitCode(err error) int {
	switch core.KindOf(err) {
	case core.KindNone:
		return ExitCodeSuccess
	case core.KindInvalidInput:
		return ExitCodeAuthRequired
	case core.KindDenied, core.KindMalformed, core.KindExchange, core.KindTimedOut:
		return ExitCodeAuthFailed
	case core.KindAlreadyInProgress, core.KindPortUnavailable:
		return ExitCodeUnavailable
	case core.KindCancelled:
		return ExitCodeCancelled
	}
	if errors.Is(err, core.ErrRecordNotFound) {
		return ExitCodeAuthRequired
	}
	return ExitCodeError
}

// globalOptions hold the persistent flags; set flags override the
// environment.
type globalOptions struct {
	clientID  string
	port      int
	timeout   time.Duration
	store     string
	boltPath  string
	logLevel  string
	noBrowser bool

	cfg config.Config
}

func newRootCmd(version string) *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "gcal-auth",
		Short: "Authorize read-only access to Google Calendar and Tasks",
		Long: `gcal-auth runs the browser sign-in flow for Google Calendar and Google Tasks
(read-only), stores the issued tokens and refreshes them on demand.

Client credentials are read from GCAL_CLIENT_ID and GCAL_CLIENT_SECRET.`,
		Version:      version,
		SilenceUsage: true,
		// main prints a short summary instead
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}
	cmd.SetVersionTemplate(`{{printf "gcal-auth version %s\n" .Version}}`)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.clientID, "client-id", "", "OAuth client id (default $GCAL_CLIENT_ID)")
	flags.IntVar(&opts.port, "port", 8080, "loopback callback port (default $GCAL_OAUTH_PORT)")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "how long to wait for the browser step, 0 to wait forever")
	flags.StringVar(&opts.store, "store", "bolt", "token store: memory, redis, bolt or keyring (default $GCAL_STORE)")
	flags.StringVar(&opts.boltPath, "bolt-path", "", "token database path (default $GCAL_BOLT_PATH or the user config dir)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (default $LOG_LEVEL)")
	flags.BoolVar(&opts.noBrowser, "no-browser", false, "print the consent URL instead of opening a browser")

	cmd.AddCommand(
		newLoginCmd(opts),
		newStatusCmd(opts),
		newTokenCmd(opts),
		newLogoutCmd(opts),
		newServeCmd(opts, version),
	)
	return cmd
}

func (o *globalOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("client-id") {
		cfg.ClientID = o.clientID
	}
	if flags.Changed("port") {
		cfg.Port = o.port
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("store") {
		cfg.StoreType = o.store
	}
	if flags.Changed("bolt-path") {
		cfg.BoltPath = o.boltPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("no-browser") {
		cfg.NoBrowser = o.noBrowser
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg

	// stdout belongs to command output and the MCP stdio transport
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = os.Stderr
	return nil
}

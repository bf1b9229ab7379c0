package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newLoginCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Run the browser sign-in flow and store the tokens",
		Long: `Starts a local callback listener, opens the Google consent page and waits for
the redirect. The issued tokens are exchanged and written to the token store.

Press Ctrl+C to abandon the flow.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.cfg.Credentials().Validate(); err != nil {
				return err
			}

			a, err := newApp(opts.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintln(cmd.ErrOrStderr(), "Waiting for the browser sign-in to complete...")
			if _, err := a.session.Authorize(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Authorization successful.")
			return nil
		},
	}
}

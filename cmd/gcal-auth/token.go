package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token, refreshing it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			tokens, err := a.session.Token(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tokens.AccessToken)
			return nil
		},
	}
}

package main

import (
	"errors"
	"fmt"

	"github.com/go-training/gcal-oauth/pkg/core"

	"github.com/spf13/cobra"
)

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the locally stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.session.Revoke(cmd.Context())
			switch {
			case errors.Is(err, core.ErrRecordNotFound):
				fmt.Fprintln(cmd.OutOrStdout(), "No local token stored.")
				return nil
			case err != nil:
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Local token deleted.")
			return nil
		},
	}
}

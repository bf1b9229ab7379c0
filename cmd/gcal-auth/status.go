package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-training/gcal-oauth/pkg/session"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored token status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.session.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func printStatus(w io.Writer, st session.Status) {
	if !st.Authorized {
		fmt.Fprintln(w, "No token stored. Run 'gcal-auth login' to authorize.")
		return
	}
	fmt.Fprintf(w, "Client ID:      %s\n", st.ClientID)
	refresh := "absent"
	if st.HasRefreshToken {
		refresh = "present"
	}
	fmt.Fprintf(w, "Refresh token:  %s\n", refresh)
	switch {
	case st.Expiry.IsZero():
		fmt.Fprintln(w, "Expires:        never")
	case st.Expired:
		fmt.Fprintf(w, "Expires:        %s (expired)\n", st.Expiry.Format(time.RFC3339))
	default:
		fmt.Fprintf(w, "Expires:        %s\n", st.Expiry.Format(time.RFC3339))
	}
	if !st.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated:        %s\n", st.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Flow:           %s\n", st.FlowState)
}

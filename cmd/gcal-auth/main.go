// Command gcal-auth authorizes read-only access to Google Calendar and
// Google Tasks and keeps the resulting tokens fresh.
package main

import (
	"fmt"
	"os"

	"github.com/go-training/gcal-oauth/pkg/core"
)

// version can be set during build with -ldflags
var version = "dev"

func main() {
	root := newRootCmd(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errorMessage(err))
		os.Exit(exitCode(err))
	}
}

func errorMessage(err error) string {
	if core.KindOf(err) == core.KindUnknown {
		return err.Error()
	}
	return core.Summary(err)
}

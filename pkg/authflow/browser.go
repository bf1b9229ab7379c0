package authflow

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
)

// BrowserOpener shows the consent URL to the user. A returned error is
// logged together with the URL and does not fail the flow.
type BrowserOpener func(ctx context.Context, url string) error

var errUnsupportedPlatform = errors.New("unsupported platform")

// OpenBrowser launches the system browser without waiting for it to exit.
func OpenBrowser(_ context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		return errUnsupportedPlatform
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	// reap the launcher so it does not linger as a zombie
	go func() { _ = cmd.Wait() }()
	return nil
}

// PrintURL is a BrowserOpener for headless environments: it only reports
// the URL through fn.
func PrintURL(fn func(url string)) BrowserOpener {
	return func(_ context.Context, url string) error {
		fn(url)
		return nil
	}
}

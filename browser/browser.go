// Package browser opens authorization URLs for the user.
package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/logger"
)

// Opener shows a URL to the user.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) error

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

// Command returns the launcher binary and arguments for a URL.
type Command func(url string) (binary string, args []string)

// DefaultCommand picks the platform launcher.
func DefaultCommand(url string) (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

// System launches the platform browser.
type System struct {
	// Command defaults to DefaultCommand.
	Command Command
	// Timeout bounds the launcher process. Defaults to 10 seconds.
	Timeout time.Duration
}

// Open runs the launcher and waits for it to exit.
func (s System) Open(ctx context.Context, url string) error {
	command := s.Command
	if command == nil {
		command = DefaultCommand
	}
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary, args := command(url)
	c := exec.CommandContext(ctx, binary, args...) //nolint:gosec // the launcher is chosen per platform
	var stderr bytes.Buffer
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return errors.Internal(fmt.Sprintf("cannot open browser with %s: %s", binary, msg), err)
	}
	return nil
}

// Printer writes the URL for the user to open by hand.
type Printer struct {
	W io.Writer
}

// Open prints the URL.
func (p Printer) Open(_ context.Context, url string) error {
	_, err := fmt.Fprintf(p.W, "Open this URL in your browser to continue:\n\n  %s\n\n", url)
	return err
}

// Fallback tries Primary and falls back to Secondary when it fails.
type Fallback struct {
	Primary   Opener
	Secondary Opener
	Log       *logger.Logger
}

// Open tries each opener in turn.
func (f Fallback) Open(ctx context.Context, url string) error {
	err := f.Primary.Open(ctx, url)
	if err == nil {
		return nil
	}
	if f.Log != nil {
		f.Log.Warn("browser launch failed, printing URL instead", logger.Fields(logger.FieldError, err.Error()))
	}
	return f.Secondary.Open(ctx, url)
}

// Command tokenkeeper logs in to AWS builder identity providers and keeps the
// resulting tokens fresh.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/kbukum/tokenkeeper/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	fd := os.Stdin.Fd()
	c := &cli.CLI{
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
	code := c.Run(ctx, os.Args[1:])

	stop()
	os.Exit(code)
}

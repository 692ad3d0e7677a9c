// Package cli implements the tokenkeeper command line.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/kbukum/tokenkeeper/config"
	"github.com/kbukum/tokenkeeper/errors"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// CLI runs one tokenkeeper invocation.
type CLI struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Options are applied to every App the CLI builds.
	Options []Option
	// Interactive allows questions on Stdin, such as whether to retry a
	// failed login. Leave it false when Stdin is not a terminal.
	Interactive bool
}

// command is one subcommand. Commands without needsApp run before any
// configuration is loaded.
type command struct {
	name     string
	args     string
	summary  string
	needsApp bool
	run      func(ctx context.Context, e *env, args []string) error
}

// env is what a command runs against.
type env struct {
	app         *App
	out         *printer
	stdin       io.Reader
	stderr      io.Writer
	interactive bool
	answers     *bufio.Reader
}

var commands = map[string]command{}

func register(c command) { commands[c.name] = c }

// usageError is a malformed invocation; it exits with ExitUsage.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// Run parses args (without the program name) and executes the subcommand.
func (c *CLI) Run(ctx context.Context, args []string) int {
	c.defaults()

	fs := flag.NewFlagSet("tokenkeeper", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	configPath := fs.String("config", "", "path to the config file")
	asJSON := fs.Bool("json", false, "print JSON instead of text")
	fs.Usage = func() { c.usage(fs) }

	if err := fs.Parse(args); err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		c.usage(fs)
		return ExitUsage
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(c.Stderr, "unknown command %q\n\n", rest[0])
		c.usage(fs)
		return ExitUsage
	}

	e := &env{
		out:         &printer{w: c.Stdout, json: *asJSON},
		stdin:       c.Stdin,
		stderr:      c.Stderr,
		interactive: c.Interactive,
	}
	err := c.execute(ctx, cmd, *configPath, e, rest[1:])
	if err == nil {
		return ExitOK
	}

	var ue *usageError
	if stderrors.As(err, &ue) {
		fmt.Fprintf(c.Stderr, "%s: %s\nusage: tokenkeeper %s %s\n", cmd.name, ue.msg, cmd.name, cmd.args)
		return ExitUsage
	}
	if stderrors.Is(err, flag.ErrHelp) {
		return ExitOK
	}
	c.report(e.out, err)
	return ExitError
}

func (c *CLI) defaults() {
	if c.Stdin == nil {
		c.Stdin = os.Stdin
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
}

func (c *CLI) execute(ctx context.Context, cmd command, configPath string, e *env, args []string) error {
	if !cmd.needsApp {
		return cmd.run(ctx, e, args)
	}

	var opts []config.LoaderOption
	if configPath != "" {
		opts = append(opts, config.WithConfigFile(configPath))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	app, err := NewApp(ctx, cfg, c.Options...)
	if err != nil {
		return err
	}
	e.app = app
	return app.RunTask(ctx, func(ctx context.Context) error {
		return cmd.run(ctx, e, args)
	})
}

// report prints err as an ErrorResponse in JSON mode and as one line otherwise.
func (c *CLI) report(out *printer, err error) {
	appErr := errors.FromError(err)
	if out.json {
		enc := json.NewEncoder(out.w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(appErr.ToResponse())
		return
	}
	fmt.Fprintf(c.Stderr, "error: %s\n", appErr.Message)
	if cause := stderrors.Unwrap(appErr); cause != nil {
		fmt.Fprintf(c.Stderr, "  cause: %v\n", cause)
	}
}

func (c *CLI) usage(fs *flag.FlagSet) {
	var b strings.Builder
	b.WriteString("usage: tokenkeeper [--config FILE] [--json] <command> [args]\n\ncommands:\n")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(&b, "  %-8s %-40s %s\n", cmd.name, cmd.args, cmd.summary)
	}
	b.WriteString("\nflags:\n")
	fmt.Fprint(c.Stderr, b.String())
	fs.PrintDefaults()
}

// confirm asks a yes/no question. Anything but "y" or "yes" is a no, and
// so is a non-interactive session or JSON output.
func (e *env) confirm(question string) bool {
	if !e.interactive || e.out.json {
		return false
	}
	fmt.Fprintf(e.stderr, "%s [y/N] ", question)
	if e.answers == nil {
		e.answers = bufio.NewReader(e.stdin)
	}
	answer, err := e.answers.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// flags returns a subcommand flag set that also accepts --json.
func (e *env) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.BoolVar(&e.out.json, "json", e.out.json, "print JSON instead of text")
	return fs
}

// parse accepts flags before and after positional arguments and returns the positionals.
func parse(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			if stderrors.Is(err, flag.ErrHelp) {
				return nil, err
			}
			return nil, usagef("%v", err)
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// one parses args expecting exactly one positional argument.
func one(fs *flag.FlagSet, args []string, what string) (string, error) {
	pos, err := parse(fs, args)
	if err != nil {
		return "", err
	}
	if len(pos) != 1 {
		return "", usagef("expected exactly one %s", what)
	}
	return pos[0], nil
}

func none(fs *flag.FlagSet, args []string) error {
	pos, err := parse(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 0 {
		return usagef("unexpected argument %q", pos[0])
	}
	return nil
}

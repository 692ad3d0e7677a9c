package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/lifecycle"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/version"
)

func init() {
	register(command{name: "login", needsApp: true, run: runLogin,
		args:    "--provider P [--start-url U] [--region R] [--account A] [--invitation-code C]",
		summary: "log in through the browser and save the token"})
	register(command{name: "list", needsApp: true, run: runList,
		summary: "list stored tokens"})
	register(command{name: "show", needsApp: true, run: runShow,
		args: "ID", summary: "show one token with secrets redacted"})
	register(command{name: "refresh", needsApp: true, run: runRefresh,
		args: "ID", summary: "refresh a token now"})
	register(command{name: "ensure", needsApp: true, run: runEnsure,
		args: "ID", summary: "refresh a token only if it is expiring"})
	register(command{name: "delete", needsApp: true, run: runDelete,
		args: "ID [--revoke] [--delete-account]", summary: "delete a token"})
	register(command{name: "watch", needsApp: true, run: runWatch,
		args: "[--interval D]", summary: "keep every token fresh until interrupted"})
	register(command{name: "import", needsApp: true, run: runImport,
		args: "FILE|-", summary: "import a token file written by another tool"})
	register(command{name: "version", run: runVersion,
		summary: "print the version"})
}

type loginView struct {
	tokenView
	Attempts int `json:"attempts"`
}

func runLogin(ctx context.Context, e *env, args []string) error {
	fs := e.flags("login")
	providerName := fs.String("provider", "", "identity provider: BuilderId, Enterprise, Internal, Google or Github")
	startURL := fs.String("start-url", "", "IAM Identity Center start URL (Enterprise)")
	region := fs.String("region", "", "SSO-OIDC region override")
	account := fs.String("account", "", "account label stored with the token")
	invitation := fs.String("invitation-code", "", "invitation code for social sign-up")
	if err := none(fs, args); err != nil {
		return err
	}
	if *providerName == "" {
		return usagef("--provider is required")
	}
	kind, err := provider.ParseKind(*providerName)
	if err != nil {
		return err
	}

	c := e.app.Coordinator
	s, err := c.Login(ctx, lifecycle.LoginRequest{
		Provider:       kind,
		StartURL:       *startURL,
		Region:         *region,
		AccountName:    *account,
		InvitationCode: *invitation,
	})
	// A session back in ClientResolved may repeat the browser step, but only
	// when the user asks for it.
	for err != nil && s != nil && s.State() == lifecycle.ClientResolved && ctx.Err() == nil {
		fmt.Fprintf(e.stderr, "Login attempt %d failed: %v\n", s.Attempts(), err)
		if !e.confirm("Open the browser and try again?") {
			fmt.Fprintln(e.stderr, "Run \"tokenkeeper login\" again to retry.")
			break
		}
		err = c.Retry(ctx, s)
	}
	if err != nil {
		return err
	}

	res := s.Result()
	v := loginView{tokenView: newTokenView(res.ID, res.Location, res.Record, time.Now()), Attempts: s.Attempts()}
	return e.out.emit(v, func(w io.Writer) {
		fmt.Fprintf(w, "Logged in to %s (%s).\n", v.Provider, v.AuthMethod)
		fmt.Fprintf(w, "Saved %s\n", v.ID)
		fmt.Fprintf(w, "Expires at %s\n", v.ExpiresAt)
	})
}

func runList(ctx context.Context, e *env, args []string) error {
	if err := none(e.flags("list"), args); err != nil {
		return err
	}
	entries, err := e.app.Store.List(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	views := make([]tokenView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, entryView(entry, now))
	}
	return e.out.emit(views, func(w io.Writer) { writeTable(w, views) })
}

func runShow(ctx context.Context, e *env, args []string) error {
	id, err := one(e.flags("show"), args, "token ID")
	if err != nil {
		return err
	}
	r, err := e.app.Store.Read(ctx, id)
	if err != nil {
		return err
	}
	v := newTokenView(id, "", r, time.Now())
	return e.out.emit(v, func(w io.Writer) { writeDetail(w, v) })
}

func runRefresh(ctx context.Context, e *env, args []string) error {
	id, err := one(e.flags("refresh"), args, "token ID")
	if err != nil {
		return err
	}
	r, err := e.app.Coordinator.Refresh(ctx, id)
	if err != nil {
		return err
	}
	v := newTokenView(id, "", r, time.Now())
	return e.out.emit(v, func(w io.Writer) {
		fmt.Fprintf(w, "Refreshed %s. Expires at %s.\n", v.ID, v.ExpiresAt)
	})
}

type ensureView struct {
	tokenView
	Refreshed bool `json:"refreshed"`
}

func runEnsure(ctx context.Context, e *env, args []string) error {
	id, err := one(e.flags("ensure"), args, "token ID")
	if err != nil {
		return err
	}
	res, err := e.app.Coordinator.EnsureFresh(ctx, id)
	if err != nil {
		return err
	}
	v := ensureView{tokenView: newTokenView(id, "", res.Record, time.Now()), Refreshed: res.Refreshed}
	return e.out.emit(v, func(w io.Writer) {
		if v.Refreshed {
			fmt.Fprintf(w, "Refreshed %s. Expires at %s.\n", v.ID, v.ExpiresAt)
			return
		}
		fmt.Fprintf(w, "%s is %s. Expires at %s.\n", v.ID, v.Status, dash(v.ExpiresAt))
	})
}

type deleteView struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	RemoteError string `json:"remoteError,omitempty"`
}

func runDelete(ctx context.Context, e *env, args []string) error {
	fs := e.flags("delete")
	revoke := fs.Bool("revoke", false, "log out remotely before deleting")
	deleteAccount := fs.Bool("delete-account", false, "also delete the remote account (social only, implies --revoke)")
	id, err := one(fs, args, "token ID")
	if err != nil {
		return err
	}

	var opts []lifecycle.DeleteOption
	if *deleteAccount {
		opts = append(opts, lifecycle.AlsoDeleteAccount())
	}
	res, err := e.app.Coordinator.Delete(ctx, id, *revoke || *deleteAccount, opts...)
	if err != nil {
		return err
	}

	v := deleteView{ID: res.ID, State: res.State.String()}
	if res.RemoteErr != nil {
		v.RemoteError = res.RemoteErr.Error()
	}
	return e.out.emit(v, func(w io.Writer) {
		fmt.Fprintf(w, "Deleted %s\n", v.ID)
		if v.RemoteError != "" {
			fmt.Fprintf(w, "Warning: remote revocation failed: %s\n", v.RemoteError)
		}
	})
}

func runWatch(ctx context.Context, e *env, args []string) error {
	fs := e.flags("watch")
	interval := fs.Duration("interval", e.app.Cfg.Lifecycle.WatchInterval, "time between polls")
	if err := none(fs, args); err != nil {
		return err
	}
	if *interval <= 0 {
		return usagef("--interval must be positive")
	}

	w := e.app.Coordinator.NewWatcher(lifecycle.WatcherConfig{Interval: *interval})
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for ev := range w.Events() {
		v := newEventView(ev)
		if e.out.json {
			if err := e.out.line(v); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintln(e.out.w, v.String())
	}
	return <-done
}

func runImport(ctx context.Context, e *env, args []string) error {
	path, err := one(e.flags("import"), args, "file")
	if err != nil {
		return err
	}

	var data []byte
	if path == "-" {
		data, err = io.ReadAll(e.stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return errors.Configuration("file", "cannot read "+path).WithCause(err)
	}

	res, err := e.app.Store.Import(ctx, data)
	if err != nil {
		return err
	}
	v := newTokenView(res.ID, res.Location, res.Record, time.Now())
	return e.out.emit(v, func(w io.Writer) {
		fmt.Fprintf(w, "Imported %s token as %s\n", v.Provider, v.ID)
	})
}

func runVersion(_ context.Context, e *env, args []string) error {
	if err := none(e.flags("version"), args); err != nil {
		return err
	}
	info := version.Get()
	return e.out.emit(info, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s\n", version.Product, info.String())
	})
}

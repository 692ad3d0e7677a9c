package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/tokenkeeper/callback"
	"github.com/kbukum/tokenkeeper/config"
	"github.com/kbukum/tokenkeeper/lifecycle"
	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/observability"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/social"
	"github.com/kbukum/tokenkeeper/sso"
	"github.com/kbukum/tokenkeeper/storage"
	"github.com/kbukum/tokenkeeper/tokenstore"
	"github.com/kbukum/tokenkeeper/version"

	// Storage backends register themselves with storage.New.
	_ "github.com/kbukum/tokenkeeper/storage/local"
	_ "github.com/kbukum/tokenkeeper/storage/s3"
)

// Hook runs during shutdown.
type Hook func(ctx context.Context) error

// App holds everything a command needs, built from one configuration.
type App struct {
	Cfg         *config.Config
	Logger      *logger.Logger
	Telemetry   *observability.Telemetry
	Store       *tokenstore.Store
	Coordinator *lifecycle.Coordinator

	gracefulTimeout time.Duration
	onStop          []Hook
}

// Option configures the App during creation.
type Option func(*appOptions)

type appOptions struct {
	logger          *logger.Logger
	lifecycle       []lifecycle.Option
	gracefulTimeout *time.Duration
}

func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets a custom logger instead of one built from the config.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) { o.logger = l }
}

// WithLifecycleOptions appends coordinator options after the configured ones.
func WithLifecycleOptions(opts ...lifecycle.Option) Option {
	return func(o *appOptions) { o.lifecycle = append(o.lifecycle, opts...) }
}

// WithGracefulTimeout bounds the shutdown hooks.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) { o.gracefulTimeout = &d }
}

// NewApp wires the store, both backend clients, telemetry and the coordinator.
func NewApp(ctx context.Context, cfg *config.Config, opts ...Option) (app *App, err error) {
	o := resolveOptions(opts)

	app = &App{Cfg: cfg, gracefulTimeout: 10 * time.Second}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}
	if o.logger != nil {
		app.Logger = o.logger
	} else {
		logger.Init(&cfg.Logging, cfg.Name)
		app.Logger = logger.GetGlobalLogger()
	}
	defer func() {
		if err != nil {
			_ = app.stop()
			app = nil
		}
	}()

	app.Telemetry, err = observability.Init(ctx, cfg.Telemetry, version.Version)
	if err != nil {
		return app, err
	}
	app.OnStop(app.Telemetry.Shutdown)

	backend, err := storage.New(ctx, cfg.Store.Config, app.Logger)
	if err != nil {
		return app, err
	}
	sealer, err := cfg.Store.Sealer()
	if err != nil {
		return app, err
	}
	storeOpts := []tokenstore.Option{tokenstore.WithLogger(app.Logger)}
	if sealer != nil {
		storeOpts = append(storeOpts, tokenstore.WithSealer(sealer))
	}
	app.Store = tokenstore.New(backend, storeOpts...)

	ssoClient, err := sso.New(cfg.SSO, sso.WithLogger(app.Logger))
	if err != nil {
		return app, err
	}
	socialClient, err := social.New(cfg.Social, app.Logger)
	if err != nil {
		return app, err
	}

	log := app.Logger
	lcOpts := []lifecycle.Option{
		lifecycle.WithSSO(ssoClient),
		lifecycle.WithSocial(socialClient),
		lifecycle.WithMetrics(app.Telemetry.Metrics),
		lifecycle.WithRefreshRetry(cfg.Lifecycle.RefreshRetry),
		lifecycle.WithMaxExchangeAttempts(cfg.Lifecycle.MaxExchangeAttempts),
		lifecycle.WithReceivers(func(method provider.AuthMethod) callback.Receiver {
			return callback.NewServer(cfg.Callback.For(method), log)
		}),
		lifecycle.WithLogger(log),
	}
	app.Coordinator, err = lifecycle.New(app.Store, append(lcOpts, o.lifecycle...)...)
	if err != nil {
		return app, err
	}

	app.Logger.Debug("tokenkeeper ready", logger.Fields(
		"store", cfg.Store.Provider,
		"version", version.Version,
		"telemetry", cfg.Telemetry.Enabled,
	))
	return app, nil
}

// OnStop registers a hook run by RunTask after the task, in reverse order.
func (a *App) OnStop(hooks ...Hook) {
	a.onStop = append(a.onStop, hooks...)
}

// RunTask runs task and then the shutdown hooks. The task error wins over a
// shutdown error.
func (a *App) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	taskErr := task(ctx)
	if stopErr := a.stop(); stopErr != nil && taskErr == nil {
		return stopErr
	}
	return taskErr
}

func (a *App) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var stopErr error
	for i := len(a.onStop) - 1; i >= 0; i-- {
		if err := a.onStop[i](ctx); err != nil {
			a.Logger.Warn("shutdown hook failed", logger.ErrorFields("shutdown", err))
			if stopErr == nil {
				stopErr = fmt.Errorf("shutdown hook %d: %w", i, err)
			}
		}
	}
	return stopErr
}

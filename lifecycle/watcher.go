package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/observability"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/resilience"
	"github.com/kbukum/tokenkeeper/tokenstore"
)

// WatcherConfig configures the proactive refresher.
type WatcherConfig struct {
	// Interval between polls. Defaults to one minute.
	Interval time.Duration `mapstructure:"interval"`
	// MaxFailures consecutive refresh failures open the breaker of an auth method.
	MaxFailures int `mapstructure:"max_failures"`
	// Cooldown is how long an open breaker rejects refreshes.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// Buffer is the capacity of the events channel.
	Buffer int `mapstructure:"buffer"`
}

// ApplyDefaults fills unset fields.
func (c *WatcherConfig) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Minute
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
}

// Event describes what the watcher saw or did for one record.
type Event struct {
	ID         string
	Provider   provider.Kind
	AuthMethod provider.AuthMethod
	Status     tokenstore.Status
	Refreshed  bool
	// Err is a read, parse or refresh failure.
	Err  error
	Time time.Time
}

// Watcher refreshes expiring records on an interval.
type Watcher struct {
	c      *Coordinator
	cfg    WatcherConfig
	events chan Event
	log    *logger.Logger

	mu       sync.Mutex
	breakers map[provider.AuthMethod]*resilience.Breaker
}

// NewWatcher creates a watcher over c.
func (c *Coordinator) NewWatcher(cfg WatcherConfig) *Watcher {
	cfg.ApplyDefaults()
	return &Watcher{
		c:        c,
		cfg:      cfg,
		events:   make(chan Event, cfg.Buffer),
		log:      c.log.WithComponent("watcher"),
		breakers: make(map[provider.AuthMethod]*resilience.Breaker),
	}
}

// Events delivers one event per record per tick. Events are dropped when
// the channel is full. The channel is closed when Run returns.
func (w *Watcher) Events() <-chan Event { return w.events }

// Run polls until ctx is done. The first poll happens immediately.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.log.Info("watcher started", logger.Fields("interval", w.cfg.Interval.String()))
	for {
		w.publish(w.Tick(ctx))
		select {
		case <-ctx.Done():
			w.log.Info("watcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) publish(events []Event) {
	for _, e := range events {
		select {
		case w.events <- e:
		default:
			w.log.Warn("watcher event dropped", logger.Fields(logger.FieldTokenID, e.ID))
		}
	}
}

// Tick runs one poll and returns its events.
func (w *Watcher) Tick(ctx context.Context) (events []Event) {
	ctx, op := observability.StartOperation(ctx, w.c.metrics, "watch.tick")
	var tickErr error
	defer func() {
		op.SetAttributes(attribute.Int("tokenkeeper.records", len(events)))
		op.End(ctx, tickErr)
	}()

	entries, err := w.c.store.List(ctx)
	if err != nil {
		tickErr = err
		w.log.Error("watcher cannot list tokens", logger.ErrorFields("watch", err))
		return nil
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return events
		}
		events = append(events, w.check(ctx, entry))
	}
	return events
}

func (w *Watcher) check(ctx context.Context, entry tokenstore.Entry) Event {
	e := Event{ID: entry.ID, Time: w.c.now()}
	if entry.Err != nil {
		e.Err = entry.Err
		return e
	}
	r := entry.Record
	e.Provider, e.AuthMethod = r.Provider, r.AuthMethod
	e.Status = tokenstore.ExpiryStatus(r, e.Time)

	if !tokenstore.NeedsRefresh(r, e.Time) || !r.CanRefresh() {
		return e
	}

	e.Err = w.breaker(r.AuthMethod).Execute(func() error {
		updated, err := w.c.Refresh(ctx, entry.ID)
		if err == nil {
			e.Status = tokenstore.ExpiryStatus(updated, w.c.now())
		}
		return err
	})
	e.Refreshed = e.Err == nil
	if e.Err != nil {
		w.log.WithFields(logger.Fields(
			logger.FieldTokenID, entry.ID,
			logger.FieldProvider, r.Provider,
			logger.FieldStatus, e.Status,
		)).WithError(e.Err).Warn("watcher refresh failed")
	}
	return e
}

func (w *Watcher) breaker(method provider.AuthMethod) *resilience.Breaker {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.breakers[method]
	if !ok {
		b = resilience.NewBreaker(resilience.BreakerConfig{
			Name:        string(method) + " refresh",
			MaxFailures: w.cfg.MaxFailures,
			Cooldown:    w.cfg.Cooldown,
			OnStateChange: func(name string, from, to resilience.State) {
				w.log.Warn("refresh breaker changed state", logger.Fields(
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				))
			},
		})
		w.breakers[method] = b
	}
	return b
}

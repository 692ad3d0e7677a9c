package storage

import (
	"context"
	"sync"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/logger"
)

// Factory creates a Storage implementation from configuration.
type Factory func(ctx context.Context, cfg Config, log *logger.Logger) (Storage, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory registers a storage backend factory for the given provider name.
// Backend packages call this from init.
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// New creates the Storage selected by cfg.Provider.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Storage, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	factoriesMu.RLock()
	f, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, errors.Configuration("store.provider", "storage: provider "+cfg.Provider+" is not registered")
	}

	l := log.WithComponent("storage")
	l.Debug("initializing storage", logger.Fields("provider", cfg.Provider))
	return f(ctx, cfg, l)
}

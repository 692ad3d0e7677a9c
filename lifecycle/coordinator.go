package lifecycle

import (
	"os"
	"time"

	"github.com/kbukum/tokenkeeper/browser"
	"github.com/kbukum/tokenkeeper/callback"
	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/observability"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/resilience"
	"github.com/kbukum/tokenkeeper/social"
	"github.com/kbukum/tokenkeeper/sso"
	"github.com/kbukum/tokenkeeper/tokenstore"
)

// DefaultMaxExchangeAttempts bounds how often a login may re-run the browser step.
const DefaultMaxExchangeAttempts = 3

// ErrCodeAttemptsExhausted marks a login retried past its attempt limit.
const ErrCodeAttemptsExhausted errors.ErrorCode = "ATTEMPTS_EXHAUSTED"

// ReceiverFactory creates a fresh callback receiver for one browser attempt.
type ReceiverFactory func(method provider.AuthMethod) callback.Receiver

// DefaultReceivers returns a factory for gin loopback servers: a random
// 127.0.0.1 port for IdC and the predefined localhost ports for social.
// A zero timeout keeps the callback default.
func DefaultReceivers(timeout time.Duration, log *logger.Logger) ReceiverFactory {
	return func(method provider.AuthMethod) callback.Receiver {
		cfg := callback.IdCConfig()
		if method == provider.AuthMethodSocial {
			cfg = callback.SocialConfig()
		}
		if timeout > 0 {
			cfg.Timeout = timeout
		}
		return callback.NewServer(cfg, log)
	}
}

// Coordinator runs the token lifecycle over a store and one flow per auth method.
type Coordinator struct {
	store       *tokenstore.Store
	registry    *provider.Registry
	flows       map[provider.AuthMethod]Flow
	receivers   ReceiverFactory
	opener      browser.Opener
	metrics     *observability.Metrics
	retry       resilience.RetryConfig
	maxAttempts int
	now         func() time.Time
	log         *logger.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFlow installs the flow for method.
func WithFlow(method provider.AuthMethod, f Flow) Option {
	return func(c *Coordinator) { c.flows[method] = f }
}

// WithSSO installs the IdC flow over client.
func WithSSO(client *sso.Client) Option {
	return WithFlow(provider.AuthMethodIdC, NewIdCFlow(client))
}

// WithSocial installs the social flow over client.
func WithSocial(client *social.Client) Option {
	return WithFlow(provider.AuthMethodSocial, NewSocialFlow(client))
}

// WithRegistry replaces the default provider registry.
func WithRegistry(r *provider.Registry) Option {
	return func(c *Coordinator) { c.registry = r }
}

// WithReceivers sets the callback receiver factory.
func WithReceivers(f ReceiverFactory) Option {
	return func(c *Coordinator) { c.receivers = f }
}

// WithOpener sets how authorization URLs reach the user.
func WithOpener(o browser.Opener) Option {
	return func(c *Coordinator) { c.opener = o }
}

// WithMetrics records lifecycle counters on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithRefreshRetry retries refresh calls that fail with a retryable error.
func WithRefreshRetry(cfg resilience.RetryConfig) Option {
	return func(c *Coordinator) { c.retry = cfg }
}

// WithMaxExchangeAttempts bounds the browser attempts of one login.
func WithMaxExchangeAttempts(n int) Option {
	return func(c *Coordinator) { c.maxAttempts = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Coordinator) { c.log = l.WithComponent("lifecycle") }
}

// New creates a coordinator over store.
func New(store *tokenstore.Store, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.Configuration("store", "token store is required")
	}
	c := &Coordinator{
		store:       store,
		registry:    provider.Default(),
		flows:       make(map[provider.AuthMethod]Flow),
		maxAttempts: DefaultMaxExchangeAttempts,
		now:         time.Now,
		log:         logger.WithComponent("lifecycle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.receivers == nil {
		c.receivers = DefaultReceivers(0, c.log)
	}
	if c.opener == nil {
		c.opener = browser.Fallback{Primary: browser.System{}, Secondary: browser.Printer{W: os.Stderr}, Log: c.log}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxExchangeAttempts
	}
	return c, nil
}

// Store returns the underlying token store.
func (c *Coordinator) Store() *tokenstore.Store { return c.store }

func (c *Coordinator) flow(method provider.AuthMethod) (Flow, error) {
	f, ok := c.flows[method]
	if !ok {
		return nil, errors.Configuration("authMethod", "no flow configured for auth method "+string(method))
	}
	return f, nil
}

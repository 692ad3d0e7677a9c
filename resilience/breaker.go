package resilience

import (
	"sync"
	"time"

	"github.com/kbukum/tokenkeeper/errors"
)

// State represents the breaker state.
type State int

const (
	// StateClosed lets calls through.
	StateClosed State = iota
	// StateOpen rejects calls.
	StateOpen
	// StateHalfOpen lets one probe through.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCodeCircuitOpen marks calls rejected by an open breaker.
const ErrCodeCircuitOpen errors.ErrorCode = "CIRCUIT_OPEN"

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Name identifies the guarded backend in errors and callbacks.
	Name string
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures int
	// Cooldown is how long the breaker stays open before a probe.
	Cooldown time.Duration
	// OnStateChange is called on every transition.
	OnStateChange func(name string, from, to State)
}

// Breaker stops calling an unhealthy backend. Only errors that count as
// failures (retryable ones by default) trip it; a 4xx response says nothing
// about backend health.
type Breaker struct {
	cfg       BreakerConfig
	countable func(error) bool
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	return &Breaker{cfg: cfg, countable: IsRetryable, now: time.Now}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return errors.New(ErrCodeCircuitOpen, b.cfg.Name+" is unavailable after repeated failures").
			WithDetail("backend", b.cfg.Name)
	}
	err := fn()
	b.record(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.current() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err == nil || !b.countable(err) {
		b.failures = 0
		b.to(StateClosed)
		return
	}
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.MaxFailures {
		b.openedAt = b.now()
		b.to(StateOpen)
	}
}

func (b *Breaker) current() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.to(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) to(s State) {
	if b.state == s {
		return
	}
	from := b.state
	b.state = s
	if s == StateClosed {
		b.failures = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, s)
	}
}

package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/pkce"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/tokenstore"
)

// State is a step of the token lifecycle.
type State int

const (
	Init State = iota
	PKCEGenerated
	ClientResolved
	AwaitingCallback
	Exchanging
	Persisted
	Expiring
	Refreshing
	Expired
	RevokedByUser
	Terminal
)

var stateNames = [...]string{
	Init:             "init",
	PKCEGenerated:    "pkce_generated",
	ClientResolved:   "client_resolved",
	AwaitingCallback: "awaiting_callback",
	Exchanging:       "exchanging",
	Persisted:        "persisted",
	Expiring:         "expiring",
	Refreshing:       "refreshing",
	Expired:          "expired",
	RevokedByUser:    "revoked_by_user",
	Terminal:         "terminal",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

var transitions = map[State][]State{
	Init:             {PKCEGenerated, Terminal},
	PKCEGenerated:    {ClientResolved, Terminal},
	ClientResolved:   {AwaitingCallback, Terminal},
	AwaitingCallback: {Exchanging, ClientResolved, Terminal},
	Exchanging:       {Persisted, ClientResolved, Terminal},
	Persisted:        {Expiring, Expired, Refreshing, RevokedByUser},
	Expiring:         {Refreshing, Expired, RevokedByUser},
	Refreshing:       {Persisted, Expiring, Expired},
	Expired:          {Refreshing, RevokedByUser, Terminal},
	RevokedByUser:    {Terminal},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateForStatus maps a stored record's expiry status onto the lifecycle.
// Records with an unknown expiry count as persisted.
func StateForStatus(s tokenstore.Status) State {
	switch s {
	case tokenstore.StatusExpiring:
		return Expiring
	case tokenstore.StatusExpired:
		return Expired
	default:
		return Persisted
	}
}

// Transition is one recorded state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Session tracks one login from PKCE generation until the record is saved
// or the attempt ends.
type Session struct {
	Request LoginRequest
	Profile provider.Profile
	Target  Target

	mu          sync.Mutex
	state       State
	history     []Transition
	attempts    int
	params      *pkce.Params
	credentials *Credentials
	result      *tokenstore.SaveResult
	lastErr     error
}

func newSession(req LoginRequest, profile provider.Profile, target Target) *Session {
	return &Session{Request: req, Profile: profile, Target: target, state: Init}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns the transitions taken so far.
func (s *Session) History() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transition(nil), s.history...)
}

// Attempts returns how many browser attempts have run.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Result returns the saved record, once Persisted.
func (s *Session) Result() *tokenstore.SaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Err returns the error that ended the last attempt.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) advance(to State, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(s.state, to) {
		return errors.Internal(fmt.Sprintf("illegal lifecycle transition %s -> %s", s.state, to), nil)
	}
	s.history = append(s.history, Transition{From: s.state, To: to, At: now})
	s.state = to
	return nil
}

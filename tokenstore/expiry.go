package tokenstore

import "time"

// Status is the expiry state of a record. It is derived on demand and never stored.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusExpired  Status = "expired"
	StatusExpiring Status = "expiring"
	StatusValid    Status = "valid"
)

// ExpiringWindow is how close to expiry a record counts as expiring.
const ExpiringWindow = 5 * time.Minute

// ExpiryStatus classifies r at now. Exactly ExpiringWindow remaining is expiring.
func ExpiryStatus(r *Record, now time.Time) Status {
	exp, ok := r.Expiry()
	if !ok {
		return StatusUnknown
	}
	remaining := exp.Sub(now)
	switch {
	case remaining <= 0:
		return StatusExpired
	case remaining <= ExpiringWindow:
		return StatusExpiring
	default:
		return StatusValid
	}
}

// NeedsRefresh reports whether r is expiring or expired at now.
func NeedsRefresh(r *Record, now time.Time) bool {
	s := ExpiryStatus(r, now)
	return s == StatusExpiring || s == StatusExpired
}

// Remaining returns the time left before expiry, negative once expired.
func Remaining(r *Record, now time.Time) (time.Duration, bool) {
	exp, ok := r.Expiry()
	if !ok {
		return 0, false
	}
	return exp.Sub(now), true
}

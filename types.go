package authlimit

import "time"

// IdentifierType categorizes the subject being limited.
type IdentifierType string

const (
	// IdentifierIP limits by client address.
	IdentifierIP IdentifierType = "ip"
	// IdentifierUser limits by account identifier.
	IdentifierUser IdentifierType = "user"
)

func (t IdentifierType) valid() bool {
	return t == IdentifierIP || t == IdentifierUser
}

// Decision is the outcome of a single Check call.
//
// When Allowed is true, Remaining counts the budget left in the current
// window and ResetAt is when the oldest counted attempt ages out. When
// Allowed is false, RetryAfter is the remaining block duration and Message
// is safe to surface to end users. Limit always carries the policy budget so
// HTTP callers can render X-RateLimit-* headers without a policy lookup.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Message    string
}

// RetryAfterSeconds renders RetryAfter for a Retry-After header, rounding up
// so callers never retry early.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// BlockedKey describes one currently blocked identity, as returned by
// [Limiter.CurrentlyBlocked].
type BlockedKey struct {
	Operation      string
	IdentifierType IdentifierType
	Identifier     string
}

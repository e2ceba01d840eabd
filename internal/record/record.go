package record

import "time"

// Key identifies one limited subject: an operation plus the identifier being
// counted and its category. Identifiers arrive already normalized (trimmed,
// lowercased) from the facade so equal subjects share one budget.
type Key struct {
	Operation      string
	IdentifierType string
	Identifier     string
}

// String renders the composite lookup key.
func (k Key) String() string {
	return k.Operation + ":" + k.IdentifierType + ":" + k.Identifier
}

// Record is the mutable limiting state for one key. A record is created
// lazily on first attempt, reset rather than deleted on successful
// authentication, and only fully forgiven once the violation horizon elapses.
type Record struct {
	Key               Key
	AttemptTimestamps []time.Time
	ViolationCount    int
	LastViolationAt   time.Time
	BlockedUntil      time.Time
	UpdatedAt         time.Time
}

// Blocked reports whether the record carries an active block at now.
func (r *Record) Blocked(now time.Time) bool {
	return !r.BlockedUntil.IsZero() && r.BlockedUntil.After(now)
}

// ResetDue reports whether the record's violation history has aged past the
// forgiveness horizon.
func (r *Record) ResetDue(now time.Time, horizon time.Duration) bool {
	return r.ViolationCount > 0 && !r.LastViolationAt.IsZero() &&
		now.Sub(r.LastViolationAt) > horizon
}

// Clone returns a deep copy safe to hand to background persistence.
func (r *Record) Clone() *Record {
	out := *r
	out.AttemptTimestamps = append([]time.Time(nil), r.AttemptTimestamps...)
	return &out
}

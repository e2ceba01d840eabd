package persist

import (
	"context"
	"errors"
	"time"

	"github.com/kvarle/authlimit/internal/record"
)

var (
	// ErrNotFound indicates no durable record exists for the key.
	ErrNotFound = errors.New("rate limit record not found")
	// ErrUnavailable indicates the backend failed or timed out. Readers on
	// the check path fail open on this error; writers retry then drop.
	ErrUnavailable = errors.New("rate limit store unavailable")
)

// Store is the durable, restart-surviving storage for limiting records.
//
// Writes happen on violations and on periodic checkpoints, never on plain
// allowed attempts, so implementations see low write volume concentrated on
// abusive keys.
type Store interface {
	// Load fetches the record for key, or ErrNotFound.
	Load(ctx context.Context, key record.Key) (*record.Record, error)
	// Save upserts the record, keyed by rec.Key.
	Save(ctx context.Context, rec *record.Record) error
	// Blocked returns keys whose block extends past now, soonest-expiring
	// first, up to limit. Backed by the blocked_until index.
	Blocked(ctx context.Context, now time.Time, limit int) ([]record.Key, error)
	// Close releases backend resources.
	Close() error
}

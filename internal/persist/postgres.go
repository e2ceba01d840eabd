package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kvarle/authlimit/internal/record"
)

// PostgresStore persists limiting records in a single table keyed by
// (operation, identifier_type, identifier) with an index on blocked_until.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. The caller owns pool lifetime;
// Close here is a no-op so a shared application pool is safe to pass in.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the record table and its indexes if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS auth_rate_limit_records (
    operation          TEXT        NOT NULL,
    identifier_type    TEXT        NOT NULL,
    identifier         TEXT        NOT NULL,
    attempt_timestamps BIGINT[]    NOT NULL DEFAULT '{}',
    violation_count    INTEGER     NOT NULL DEFAULT 0,
    last_violation_at  TIMESTAMPTZ,
    blocked_until      TIMESTAMPTZ,
    updated_at         TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (operation, identifier_type, identifier)
);
CREATE INDEX IF NOT EXISTS auth_rate_limit_records_blocked_until_idx
    ON auth_rate_limit_records (blocked_until)
    WHERE blocked_until IS NOT NULL;
`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Load fetches the record for key, or ErrNotFound.
func (s *PostgresStore) Load(ctx context.Context, key record.Key) (*record.Record, error) {
	const query = `
SELECT attempt_timestamps, violation_count, last_violation_at, blocked_until, updated_at
FROM auth_rate_limit_records
WHERE operation = $1 AND identifier_type = $2 AND identifier = $3`

	var (
		nanos           []int64
		violations      int
		lastViolationAt *time.Time
		blockedUntil    *time.Time
		updatedAt       time.Time
	)
	err := s.pool.QueryRow(ctx, query, key.Operation, key.IdentifierType, key.Identifier).
		Scan(&nanos, &violations, &lastViolationAt, &blockedUntil, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec := &record.Record{
		Key:            key,
		ViolationCount: violations,
		UpdatedAt:      updatedAt,
	}
	if lastViolationAt != nil {
		rec.LastViolationAt = *lastViolationAt
	}
	if blockedUntil != nil {
		rec.BlockedUntil = *blockedUntil
	}
	if len(nanos) > 0 {
		rec.AttemptTimestamps = make([]time.Time, 0, len(nanos))
		for _, n := range nanos {
			rec.AttemptTimestamps = append(rec.AttemptTimestamps, time.Unix(0, n))
		}
	}
	return rec, nil
}

// Save upserts the record.
func (s *PostgresStore) Save(ctx context.Context, rec *record.Record) error {
	const query = `
INSERT INTO auth_rate_limit_records
    (operation, identifier_type, identifier, attempt_timestamps,
     violation_count, last_violation_at, blocked_until, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (operation, identifier_type, identifier) DO UPDATE SET
    attempt_timestamps = EXCLUDED.attempt_timestamps,
    violation_count    = EXCLUDED.violation_count,
    last_violation_at  = EXCLUDED.last_violation_at,
    blocked_until      = EXCLUDED.blocked_until,
    updated_at         = EXCLUDED.updated_at`

	nanos := make([]int64, 0, len(rec.AttemptTimestamps))
	for _, ts := range rec.AttemptTimestamps {
		nanos = append(nanos, ts.UnixNano())
	}

	_, err := s.pool.Exec(ctx, query,
		rec.Key.Operation, rec.Key.IdentifierType, rec.Key.Identifier,
		nanos, rec.ViolationCount,
		nullableTime(rec.LastViolationAt), nullableTime(rec.BlockedUntil),
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Blocked returns keys with active blocks, soonest-expiring first.
func (s *PostgresStore) Blocked(ctx context.Context, now time.Time, limit int) ([]record.Key, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `
SELECT operation, identifier_type, identifier
FROM auth_rate_limit_records
WHERE blocked_until > $1
ORDER BY blocked_until
LIMIT $2`

	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var keys []record.Key
	for rows.Next() {
		var key record.Key
		if err := rows.Scan(&key.Operation, &key.IdentifierType, &key.Identifier); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return keys, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

func nullableTime(ts time.Time) *time.Time {
	if ts.IsZero() {
		return nil
	}
	return &ts
}

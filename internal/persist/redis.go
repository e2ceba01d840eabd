package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kvarle/authlimit/internal/record"
)

const defaultRetention = 30 * 24 * time.Hour

// RedisStore persists limiting records as versioned binary blobs with a
// sorted-set index over active blocks.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a store using the given client. Empty prefix defaults
// to "arl"; zero retention defaults to 30 days. Retention bounds how long an
// untouched record survives; an active block always outlives it.
func NewRedisStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "arl"
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &RedisStore{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *RedisStore) recordKey(key record.Key) string {
	return s.prefix + ":r:" + key.String()
}

func (s *RedisStore) blockedIndexKey() string {
	return s.prefix + ":blocked"
}

// Load fetches and decodes the record for key.
func (s *RedisStore) Load(ctx context.Context, key record.Key) (*record.Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := record.Decode(key, data)
	if err != nil {
		// A corrupt blob is unrecoverable; treat it as absent so the key
		// restarts from a clean slate instead of wedging checks.
		return nil, ErrNotFound
	}
	return rec, nil
}

// Save upserts the record and maintains the blocked index.
func (s *RedisStore) Save(ctx context.Context, rec *record.Record) error {
	encoded, err := record.Encode(rec)
	if err != nil {
		return err
	}

	now := time.Now()
	ttl := s.retention
	if rec.BlockedUntil.After(now.Add(ttl)) {
		ttl = rec.BlockedUntil.Sub(now) + time.Hour
	}

	member := rec.Key.String()
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.Key), encoded, ttl)
		if rec.Blocked(now) {
			pipe.ZAdd(ctx, s.blockedIndexKey(), redis.Z{
				Score:  float64(rec.BlockedUntil.Unix()),
				Member: member,
			})
		} else {
			pipe.ZRem(ctx, s.blockedIndexKey(), member)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Blocked returns keys with active blocks, soonest-expiring first. Expired
// index members are pruned as a side effect.
func (s *RedisStore) Blocked(ctx context.Context, now time.Time, limit int) ([]record.Key, error) {
	if limit <= 0 {
		limit = 100
	}

	// Drop members whose block already lapsed.
	if err := s.redis.ZRemRangeByScore(ctx, s.blockedIndexKey(), "-inf", fmt.Sprintf("%d", now.Unix())).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	members, err := s.redis.ZRangeByScore(ctx, s.blockedIndexKey(), &redis.ZRangeBy{
		Min:   fmt.Sprintf("(%d", now.Unix()),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	keys := make([]record.Key, 0, len(members))
	for _, m := range members {
		if key, ok := parseKey(m); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error { return nil }

// parseKey inverts record.Key.String. Identifiers may themselves contain
// colons (IPv6), so only the first two separators split fields.
func parseKey(raw string) (record.Key, bool) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return record.Key{}, false
	}
	return record.Key{
		Operation:      parts[0],
		IdentifierType: parts[1],
		Identifier:     parts[2],
	}, true
}

// Package persist provides the durable storage backends for limiting
// records: Redis (binary blobs plus a blocked-until sorted-set index) and
// Postgres (one table, blocked_until partial index).
//
// # Write policy
//
// The facade writes through this package on block decisions and periodic
// checkpoints only. Plain allowed attempts never reach durable storage, so
// the authentication hot path performs no durable I/O except the bounded
// fallback read on a cache miss.
//
// # Error contract
//
// Backends wrap every transport failure in [ErrUnavailable]; missing records
// are [ErrNotFound]. Callers decide the availability policy (the check path
// fails open).
//
// # What this package must NOT do
//
//   - Make limiting decisions or mutate records.
//   - Retry; the checkpoint loop owns retry policy.
package persist

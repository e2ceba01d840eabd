package authlimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kvarle/authlimit/internal/accesslist"
	"github.com/kvarle/authlimit/internal/backoff"
	"github.com/kvarle/authlimit/internal/keystore"
	"github.com/kvarle/authlimit/internal/persist"
	"github.com/kvarle/authlimit/internal/policy"
	"github.com/kvarle/authlimit/internal/record"
	"github.com/kvarle/authlimit/internal/window"
)

const (
	blockedMessage = "too many attempts; try again later"
	deniedMessage  = "access denied"

	resetReasonSuccess = "successful-authentication"

	flushQueueSize  = 64
	blockedPageSize = 100
)

// Limiter is the abuse-prevention rate limiter facade. It is called inline
// by protected authentication endpoints and is safe for concurrent use.
type Limiter struct {
	cfg      Config
	policies *policy.Registry
	access   *accesslist.List
	cache    *keystore.Store
	store    persist.Store
	ledger   *ledgerDispatcher
	metrics  *Metrics
	now      func() time.Time

	flushCh chan *record.Record
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// Check decides whether one attempt at operation by identifier may proceed,
// recording the attempt when allowed.
//
// Only caller programming errors (bad operation, identifier, or identifier
// type) surface as errors; every infrastructure failure degrades to a
// decision, preferring allowed, so the authentication path never breaks
// because of this subsystem.
func (l *Limiter) Check(ctx context.Context, operation, identifier string, idType IdentifierType) (Decision, error) {
	started := time.Now()
	defer func() {
		l.metrics.Observe(MetricCheckLatency, time.Since(started))
	}()

	key, err := l.composeKey(operation, identifier, idType)
	if err != nil {
		return Decision{}, err
	}

	pol, ok := l.policies.Get(key.Operation)
	if !ok {
		// Deliberate operator default: an unregistered operation is
		// unlimited. Every protected endpoint must register a policy.
		l.metrics.Inc(MetricPolicyMiss)
		return Decision{Allowed: true}, nil
	}

	now := l.now()

	switch l.classify(key, idType) {
	case accesslist.Allow:
		l.metrics.Inc(MetricAccessListAllowed)
		return Decision{
			Allowed:   true,
			Limit:     pol.MaxAttempts,
			Remaining: pol.MaxAttempts,
			ResetAt:   now.Add(pol.WindowDuration),
		}, nil
	case accesslist.Deny:
		l.metrics.Inc(MetricAccessListDenied)
		return Decision{
			Allowed: false,
			Limit:   pol.MaxAttempts,
			Message: deniedMessage,
		}, nil
	}

	entry, _ := l.cache.Acquire(key, now)
	entry.Lock()
	defer entry.Unlock()

	l.hydrate(ctx, entry, key)
	rec := entry.Record()

	// Long-reformed identifiers regain full trust before anything else runs.
	if rec.ResetDue(now, pol.ViolationResetAfter) {
		rec.ViolationCount = 0
		rec.LastViolationAt = time.Time{}
		rec.BlockedUntil = time.Time{}
		rec.UpdatedAt = now
		entry.MarkDirty()
	}

	// An actively blocked identity does not consume further window budget.
	if rec.Blocked(now) {
		l.metrics.Inc(MetricCheckBlocked)
		return Decision{
			Allowed:    false,
			Limit:      pol.MaxAttempts,
			ResetAt:    rec.BlockedUntil,
			RetryAfter: rec.BlockedUntil.Sub(now),
			Message:    blockedMessage,
		}, nil
	}

	rec.AttemptTimestamps = window.Prune(rec.AttemptTimestamps, now, pol.WindowDuration)
	count := len(rec.AttemptTimestamps)

	if count >= pol.MaxAttempts {
		duration := backoff.BlockDuration(
			pol.BaseBlockDuration, pol.BackoffMultiplier, pol.MaxBlockDuration,
			rec.ViolationCount,
		)
		rec.ViolationCount++
		rec.LastViolationAt = now
		rec.BlockedUntil = now.Add(duration)
		rec.UpdatedAt = now
		entry.MarkDirty()

		l.scheduleFlush(rec)
		l.emitBlocked(ctx, key, now, rec.ViolationCount, duration)
		l.metrics.Inc(MetricBlockApplied)
		l.metrics.Inc(MetricCheckBlocked)

		return Decision{
			Allowed:    false,
			Limit:      pol.MaxAttempts,
			ResetAt:    rec.BlockedUntil,
			RetryAfter: duration,
			Message:    blockedMessage,
		}, nil
	}

	rec.AttemptTimestamps = window.Append(rec.AttemptTimestamps, now, pol.MaxAttempts)
	rec.UpdatedAt = now
	entry.MarkDirty()

	if l.cfg.Ledger.EmitAllowed {
		l.emitAllowed(ctx, key, now)
	}
	l.metrics.Inc(MetricCheckAllowed)

	return Decision{
		Allowed:   true,
		Limit:     pol.MaxAttempts,
		Remaining: pol.MaxAttempts - count - 1,
		ResetAt:   window.OldestReset(rec.AttemptTimestamps, now, pol.WindowDuration),
	}, nil
}

// Reset clears the attempt window and any active block for the key, called
// by the endpoint after business-level success (e.g. correct password).
//
// Violation history is deliberately preserved: reset clears the block, not
// the attacker's record. Only ViolationResetAfter of sustained good behavior
// zeroes the violation count.
func (l *Limiter) Reset(ctx context.Context, operation, identifier string, idType IdentifierType) error {
	key, err := l.composeKey(operation, identifier, idType)
	if err != nil {
		return err
	}

	if _, ok := l.policies.Get(key.Operation); !ok {
		return nil
	}

	now := l.now()
	entry, _ := l.cache.Acquire(key, now)
	entry.Lock()
	defer entry.Unlock()

	l.hydrate(ctx, entry, key)
	rec := entry.Record()

	rec.AttemptTimestamps = rec.AttemptTimestamps[:0]
	rec.BlockedUntil = time.Time{}
	rec.UpdatedAt = now
	entry.MarkDirty()

	l.scheduleFlush(rec)
	l.emitReset(ctx, key, now, rec.ViolationCount)
	l.metrics.Inc(MetricReset)

	return nil
}

// Peek reports the decision state for a key without recording an attempt or
// touching the persistent store. Useful for introspection endpoints.
func (l *Limiter) Peek(operation, identifier string, idType IdentifierType) (Decision, error) {
	key, err := l.composeKey(operation, identifier, idType)
	if err != nil {
		return Decision{}, err
	}

	pol, ok := l.policies.Get(key.Operation)
	if !ok {
		return Decision{Allowed: true}, nil
	}

	now := l.now()
	entry, ok := l.cache.Peek(key)
	if !ok {
		return Decision{
			Allowed:   true,
			Limit:     pol.MaxAttempts,
			Remaining: pol.MaxAttempts,
			ResetAt:   now.Add(pol.WindowDuration),
		}, nil
	}

	entry.Lock()
	defer entry.Unlock()
	rec := entry.Record()

	// Mirror the lazy forgiveness Check applies, without mutating: a block
	// whose violation history has aged past the horizon no longer binds.
	if rec.Blocked(now) && !rec.ResetDue(now, pol.ViolationResetAfter) {
		return Decision{
			Allowed:    false,
			Limit:      pol.MaxAttempts,
			ResetAt:    rec.BlockedUntil,
			RetryAfter: rec.BlockedUntil.Sub(now),
			Message:    blockedMessage,
		}, nil
	}

	count := window.Count(rec.AttemptTimestamps, now, pol.WindowDuration)
	remaining := pol.MaxAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   true,
		Limit:     pol.MaxAttempts,
		Remaining: remaining,
		ResetAt:   window.OldestReset(rec.AttemptTimestamps, now, pol.WindowDuration),
	}, nil
}

// CurrentlyBlocked lists identities with active blocks from the durable
// store's blocked_until index, soonest-expiring first.
func (l *Limiter) CurrentlyBlocked(ctx context.Context) ([]BlockedKey, error) {
	keys, err := l.store.Blocked(ctx, l.now(), blockedPageSize)
	if err != nil {
		return nil, err
	}
	out := make([]BlockedKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, BlockedKey{
			Operation:      k.Operation,
			IdentifierType: IdentifierType(k.IdentifierType),
			Identifier:     k.Identifier,
		})
	}
	return out, nil
}

// ReplaceAccessList atomically installs new allow/deny lists, for hosts that
// reload them from maintained files.
func (l *Limiter) ReplaceAccessList(cfg AccessListConfig) {
	l.access.Replace(accesslist.Seed{
		AllowIPs:   cfg.AllowIPs,
		DenyIPs:    cfg.DenyIPs,
		AllowUsers: cfg.AllowUsers,
		DenyUsers:  cfg.DenyUsers,
	})
}

// MetricsSnapshot exposes the counter set for the exporters.
func (l *Limiter) MetricsSnapshot() MetricsSnapshot {
	return l.metrics.Snapshot()
}

// LedgerDropped reports how many ledger events were discarded due to
// dispatcher backpressure.
func (l *Limiter) LedgerDropped() uint64 {
	return l.ledger.Dropped()
}

// Close flushes pending record mutations, stops background loops, drains the
// ledger, and releases the store. The limiter must not be used afterwards.
func (l *Limiter) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return ErrLimiterClosed
	}
	close(l.done)
	l.wg.Wait()
	l.ledger.Close()
	return l.store.Close()
}

func (l *Limiter) composeKey(operation, identifier string, idType IdentifierType) (record.Key, error) {
	if l.closed.Load() {
		return record.Key{}, ErrLimiterClosed
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		return record.Key{}, ErrInvalidOperation
	}
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return record.Key{}, ErrInvalidIdentifier
	}
	if !idType.valid() {
		return record.Key{}, ErrInvalidIdentifierType
	}
	return record.Key{
		Operation:      operation,
		IdentifierType: string(idType),
		Identifier:     identifier,
	}, nil
}

func (l *Limiter) classify(key record.Key, idType IdentifierType) accesslist.Outcome {
	if idType == IdentifierIP {
		return l.access.ClassifyIP(key.Identifier)
	}
	return l.access.ClassifyUser(key.Identifier)
}

// hydrate performs the one-shot persistent-store fallback for a cache miss.
// Read failures fail open: the key proceeds from a clean slate rather than
// erroring, trading at worst one extra window of grace for availability.
// Entry lock must be held.
func (l *Limiter) hydrate(ctx context.Context, entry *keystore.Entry, key record.Key) {
	if entry.Hydrated() {
		return
	}
	entry.SetHydrated()

	loadCtx, cancel := context.WithTimeout(ctx, l.cfg.Persistence.ReadTimeout)
	defer cancel()

	rec, err := l.store.Load(loadCtx, key)
	switch {
	case err == nil:
		l.metrics.Inc(MetricStoreFallback)
		entry.Replace(rec)
	case errors.Is(err, persist.ErrNotFound):
		// Genuinely new key; the zero record stands.
	default:
		l.metrics.Inc(MetricFailOpen)
	}
}

// scheduleFlush hands a record clone to the checkpoint goroutine for an
// immediate durable write. If the queue is full the dirty flag alone
// guarantees the next periodic checkpoint picks the record up.
func (l *Limiter) scheduleFlush(rec *record.Record) {
	select {
	case l.flushCh <- rec.Clone():
	default:
	}
}

func (l *Limiter) emitBlocked(ctx context.Context, key record.Key, now time.Time, violations int, duration time.Duration) {
	ev := newViolationEvent(EventBlocked, now)
	ev.Operation = key.Operation
	ev.IdentifierType = key.IdentifierType
	ev.Identifier = key.Identifier
	ev.ViolationCount = violations
	ev.BlockDuration = duration
	l.ledger.Emit(ctx, ev)
}

func (l *Limiter) emitReset(ctx context.Context, key record.Key, now time.Time, violations int) {
	ev := newViolationEvent(EventReset, now)
	ev.Operation = key.Operation
	ev.IdentifierType = key.IdentifierType
	ev.Identifier = key.Identifier
	ev.ViolationCount = violations
	ev.Reason = resetReasonSuccess
	l.ledger.Emit(ctx, ev)
}

func (l *Limiter) emitAllowed(ctx context.Context, key record.Key, now time.Time) {
	ev := newViolationEvent(EventAllowed, now)
	ev.Operation = key.Operation
	ev.IdentifierType = key.IdentifierType
	ev.Identifier = key.Identifier
	l.ledger.Emit(ctx, ev)
}

func (l *Limiter) start() {
	l.wg.Add(2)
	go l.checkpointLoop()
	go l.evictionLoop()
}

// checkpointLoop owns all durable writes: immediate violation flushes from
// the queue and periodic sweeps of dirty cache entries. A final sweep runs
// on shutdown.
func (l *Limiter) checkpointLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.Persistence.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-l.flushCh:
			l.saveWithRetry(rec)
		case <-ticker.C:
			l.flushDirty()
		case <-l.done:
			for {
				select {
				case rec := <-l.flushCh:
					l.saveWithRetry(rec)
				default:
					l.flushDirty()
					return
				}
			}
		}
	}
}

func (l *Limiter) evictionLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.KeyStore.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n := l.cache.EvictIdle(l.now(), l.cfg.KeyStore.MaxIdle)
			l.metrics.Add(MetricEvicted, uint64(n))
		case <-l.done:
			return
		}
	}
}

func (l *Limiter) flushDirty() {
	records := l.cache.DrainDirty()
	if len(records) == 0 {
		return
	}
	saved := 0
	for _, rec := range records {
		if l.saveWithRetry(rec) {
			saved++
			continue
		}
		// The drain already cleared the dirty flag; restore it so the next
		// sweep retries once the store recovers.
		l.cache.Redirty(rec, l.now())
	}

	ev := newViolationEvent(EventCheckpoint, l.now())
	ev.Reason = "flushed " + strconv.Itoa(saved) + " of " + strconv.Itoa(len(records)) + " records"
	l.ledger.Emit(context.Background(), ev)
}

// saveWithRetry persists one record, retrying with linear backoff. Reports
// whether the write landed; callers keep failed records dirty so they are
// retried at the next checkpoint, and total loss needs a simultaneous crash
// and store outage.
func (l *Limiter) saveWithRetry(rec *record.Record) bool {
	for attempt := 0; attempt < l.cfg.Persistence.WriteRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(l.cfg.Persistence.RetryBackoff * time.Duration(attempt))
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.Persistence.WriteTimeout)
		err := l.store.Save(ctx, rec)
		cancel()
		if err == nil {
			l.metrics.Inc(MetricCheckpointSaved)
			return true
		}
	}
	l.metrics.Inc(MetricCheckpointError)
	return false
}

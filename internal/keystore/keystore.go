package keystore

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/kvarle/authlimit/internal/record"
)

const defaultShardCount = 32

// Entry is one cached record together with its per-key lock. Callers must
// hold the lock across any read-modify-write of the record; this is what
// makes concurrent checks against the same identifier linearizable.
type Entry struct {
	mu         sync.Mutex
	rec        *record.Record
	dirty      bool
	hydrated   bool
	lastAccess time.Time
}

func (e *Entry) Lock()   { e.mu.Lock() }
func (e *Entry) Unlock() { e.mu.Unlock() }

// Hydrated reports whether a persistent-store fallback was already attempted
// for this entry. Entry lock must be held.
func (e *Entry) Hydrated() bool { return e.hydrated }

// SetHydrated marks the fallback as done, successful or not, so it runs at
// most once per cached entry. Entry lock must be held.
func (e *Entry) SetHydrated() { e.hydrated = true }

// Record returns the cached record. Valid only while the entry lock is held.
func (e *Entry) Record() *record.Record { return e.rec }

// Replace swaps the cached record, used when a persistent-store read wins
// over the fresh zero value. Entry lock must be held.
func (e *Entry) Replace(rec *record.Record) { e.rec = rec }

// MarkDirty flags the record for the next checkpoint flush. Entry lock must
// be held.
func (e *Entry) MarkDirty() { e.dirty = true }

type shard struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// Store is the sharded in-process cache for limiting records. It is the
// hot-path source of truth; the persistent store is only consulted on miss.
type Store struct {
	shards []*shard
}

// New creates a store with the given shard count (0 picks the default).
func New(shardCount int) *Store {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*Entry)}
	}
	return &Store{shards: shards}
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Acquire returns the entry for key, creating a zero-valued record on first
// use. The second return reports whether the entry already existed; on a
// fresh entry the caller is expected to attempt a persistent-store fallback
// before trusting the zero value.
func (s *Store) Acquire(key record.Key, now time.Time) (*Entry, bool) {
	ks := key.String()
	sh := s.shardFor(ks)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[ks]
	if !ok {
		entry = &Entry{rec: &record.Record{Key: key}}
		sh.entries[ks] = entry
	}
	entry.lastAccess = now
	return entry, ok
}

// Peek returns the entry for key without creating one.
func (s *Store) Peek(key record.Key) (*Entry, bool) {
	ks := key.String()
	sh := s.shardFor(ks)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[ks]
	return entry, ok
}

// Len reports the number of cached entries across all shards.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// DrainDirty collects clones of all dirty records and clears their dirty
// flags. The checkpoint loop persists the clones outside any lock.
func (s *Store) DrainDirty() []*record.Record {
	var out []*record.Record
	for _, sh := range s.shards {
		sh.mu.Lock()
		entries := make([]*Entry, 0, len(sh.entries))
		for _, e := range sh.entries {
			entries = append(entries, e)
		}
		sh.mu.Unlock()

		for _, e := range entries {
			e.mu.Lock()
			if e.dirty {
				e.dirty = false
				out = append(out, e.rec.Clone())
			}
			e.mu.Unlock()
		}
	}
	return out
}

// Redirty re-flags the entry for rec's key after a failed durable write so
// the next checkpoint retries it. If the entry was evicted between the drain
// and the failure, the record is reinstated from the failed clone; an entry
// that was mutated meanwhile just keeps its newer state.
func (s *Store) Redirty(rec *record.Record, now time.Time) {
	entry, existed := s.Acquire(rec.Key, now)
	entry.Lock()
	defer entry.Unlock()

	if !existed {
		entry.Replace(rec.Clone())
		entry.SetHydrated()
	}
	entry.MarkDirty()
}

// EvictIdle removes entries untouched for longer than maxIdle, skipping
// anything dirty or still blocked so no state is lost before it is either
// flushed or expired. Returns the number of evicted entries.
func (s *Store) EvictIdle(now time.Time, maxIdle time.Duration) int {
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for ks, e := range sh.entries {
			if !e.mu.TryLock() {
				continue
			}
			idle := now.Sub(e.lastAccess) > maxIdle
			keep := e.dirty || e.rec.Blocked(now)
			e.mu.Unlock()

			if idle && !keep {
				delete(sh.entries, ks)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}

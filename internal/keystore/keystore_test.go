package keystore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kvarle/authlimit/internal/record"
)

func testKey(id string) record.Key {
	return record.Key{Operation: "sign-in", IdentifierType: "ip", Identifier: id}
}

func TestAcquireCreatesZeroRecordOnce(t *testing.T) {
	s := New(4)
	now := time.Now()

	e1, existed := s.Acquire(testKey("203.0.113.1"), now)
	if existed {
		t.Fatal("first acquire reported existing entry")
	}
	e1.Lock()
	if e1.Record().ViolationCount != 0 || len(e1.Record().AttemptTimestamps) != 0 {
		t.Fatal("fresh entry is not a zero record")
	}
	e1.Unlock()

	e2, existed := s.Acquire(testKey("203.0.113.1"), now)
	if !existed {
		t.Fatal("second acquire reported fresh entry")
	}
	if e1 != e2 {
		t.Fatal("same key resolved to different entries")
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestPeekDoesNotCreate(t *testing.T) {
	s := New(4)
	if _, ok := s.Peek(testKey("203.0.113.1")); ok {
		t.Fatal("peek on empty store found an entry")
	}
	if s.Len() != 0 {
		t.Fatalf("peek created an entry: len = %d", s.Len())
	}
}

func TestConcurrentAcquireSameKey(t *testing.T) {
	s := New(8)
	now := time.Now()
	key := testKey("203.0.113.1")

	const workers = 64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, _ := s.Acquire(key, now)
			e.Lock()
			rec := e.Record()
			rec.ViolationCount++
			e.Unlock()
		}()
	}
	wg.Wait()

	e, ok := s.Peek(key)
	if !ok {
		t.Fatal("entry missing after concurrent acquires")
	}
	e.Lock()
	defer e.Unlock()
	if e.Record().ViolationCount != workers {
		t.Fatalf("violations = %d, want %d; per-key lock failed to serialize", e.Record().ViolationCount, workers)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestDrainDirtyClonesAndClears(t *testing.T) {
	s := New(4)
	now := time.Now()

	for i := 0; i < 3; i++ {
		e, _ := s.Acquire(testKey(fmt.Sprintf("203.0.113.%d", i)), now)
		e.Lock()
		e.Record().ViolationCount = i + 1
		e.MarkDirty()
		e.Unlock()
	}
	// One clean entry that must not be drained.
	s.Acquire(testKey("203.0.113.99"), now)

	drained := s.DrainDirty()
	if len(drained) != 3 {
		t.Fatalf("drained %d records, want 3", len(drained))
	}

	// Mutating a drained clone must not touch the cache.
	drained[0].ViolationCount = 1000

	if again := s.DrainDirty(); len(again) != 0 {
		t.Fatalf("second drain returned %d records, want 0", len(again))
	}
}

func TestRedirtyMakesDrainedRecordSweepableAgain(t *testing.T) {
	s := New(4)
	now := time.Now()

	e, _ := s.Acquire(testKey("203.0.113.1"), now)
	e.Lock()
	e.Record().ViolationCount = 3
	e.MarkDirty()
	e.Unlock()

	drained := s.DrainDirty()
	if len(drained) != 1 {
		t.Fatalf("drained %d records, want 1", len(drained))
	}
	if len(s.DrainDirty()) != 0 {
		t.Fatal("drain did not clear the dirty flag")
	}

	// A failed durable write hands the clone back; the entry must become
	// dirty again so the next sweep retries it.
	s.Redirty(drained[0], now)

	again := s.DrainDirty()
	if len(again) != 1 {
		t.Fatalf("redirtied record not drained: got %d", len(again))
	}
	if again[0].ViolationCount != 3 {
		t.Fatalf("violations = %d, want 3", again[0].ViolationCount)
	}
}

func TestRedirtyReinstatesEvictedEntry(t *testing.T) {
	s := New(4)
	start := time.Now()

	e, _ := s.Acquire(testKey("203.0.113.1"), start)
	e.Lock()
	e.Record().ViolationCount = 2
	e.MarkDirty()
	e.Unlock()

	drained := s.DrainDirty()
	if len(drained) != 1 {
		t.Fatalf("drained %d records, want 1", len(drained))
	}

	// Entry is clean now, so it can be evicted before the write outcome is
	// known.
	later := start.Add(time.Hour)
	if n := s.EvictIdle(later, 30*time.Minute); n != 1 {
		t.Fatalf("evicted %d entries, want 1", n)
	}

	s.Redirty(drained[0], later)

	entry, ok := s.Peek(testKey("203.0.113.1"))
	if !ok {
		t.Fatal("redirty did not reinstate the evicted entry")
	}
	entry.Lock()
	defer entry.Unlock()
	if entry.Record().ViolationCount != 2 {
		t.Fatalf("reinstated violations = %d, want 2", entry.Record().ViolationCount)
	}
	if !entry.Hydrated() {
		t.Fatal("reinstated entry would be overwritten by a store fallback read")
	}
}

func TestEvictIdleSkipsDirtyAndBlocked(t *testing.T) {
	s := New(4)
	start := time.Now()

	idle, _ := s.Acquire(testKey("idle"), start)
	_ = idle

	dirty, _ := s.Acquire(testKey("dirty"), start)
	dirty.Lock()
	dirty.MarkDirty()
	dirty.Unlock()

	blocked, _ := s.Acquire(testKey("blocked"), start)
	blocked.Lock()
	blocked.Record().BlockedUntil = start.Add(24 * time.Hour)
	blocked.Unlock()

	fresh, _ := s.Acquire(testKey("fresh"), start.Add(time.Hour))
	_ = fresh

	evicted := s.EvictIdle(start.Add(time.Hour), 30*time.Minute)
	if evicted != 1 {
		t.Fatalf("evicted %d entries, want 1", evicted)
	}
	if _, ok := s.Peek(testKey("idle")); ok {
		t.Fatal("idle entry survived eviction")
	}
	for _, id := range []string{"dirty", "blocked", "fresh"} {
		if _, ok := s.Peek(testKey(id)); !ok {
			t.Fatalf("%s entry was evicted", id)
		}
	}
}

func TestHydratedFlagLifecycle(t *testing.T) {
	s := New(4)
	e, _ := s.Acquire(testKey("203.0.113.1"), time.Now())

	e.Lock()
	if e.Hydrated() {
		t.Fatal("fresh entry reports hydrated")
	}
	e.SetHydrated()
	if !e.Hydrated() {
		t.Fatal("hydrated flag did not stick")
	}
	e.Replace(&record.Record{Key: testKey("203.0.113.1"), ViolationCount: 7})
	if e.Record().ViolationCount != 7 {
		t.Fatal("replace did not swap the record")
	}
	e.Unlock()
}

func TestZeroShardCountUsesDefault(t *testing.T) {
	s := New(0)
	if len(s.shards) != defaultShardCount {
		t.Fatalf("shards = %d, want %d", len(s.shards), defaultShardCount)
	}
}

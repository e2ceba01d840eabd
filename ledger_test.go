package authlimit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

// blockingSink holds every emit until released, to force dispatcher backpressure.
type blockingSink struct {
	release chan struct{}
	seen    chan ViolationEvent
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		release: make(chan struct{}),
		seen:    make(chan ViolationEvent, 1024),
	}
}

func (s *blockingSink) Emit(_ context.Context, event ViolationEvent) {
	<-s.release
	s.seen <- event
}

// recordingSink collects events without blocking.
type recordingSink struct {
	mu     sync.Mutex
	events []ViolationEvent
}

func (s *recordingSink) Emit(_ context.Context, event ViolationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDeliversEvents(t *testing.T) {
	sink := &recordingSink{}
	d := newLedgerDispatcher(LedgerConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), newViolationEvent(EventBlocked, time.Now()))
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("delivered %d of 5 events", sink.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	d.Close()
	if d.Dropped() != 0 {
		t.Fatalf("dropped = %d, want 0", d.Dropped())
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := newBlockingSink()
	d := newLedgerDispatcher(LedgerConfig{Enabled: true, BufferSize: 2, DropIfFull: true}, sink)

	// One event is stuck in the sink, two fill the buffer; the rest must be
	// dropped without blocking the caller.
	for i := 0; i < 10; i++ {
		done := make(chan struct{})
		go func() {
			d.Emit(context.Background(), newViolationEvent(EventBlocked, time.Now()))
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("emit blocked despite drop-if-full")
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no events dropped under backpressure")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(sink.release)
	d.Close()
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	d := newLedgerDispatcher(LedgerConfig{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), newViolationEvent(EventReset, time.Now()))
	}
	d.Close()

	if sink.count() != 20 {
		t.Fatalf("delivered %d of 20 events after close", sink.count())
	}

	// Emit after close is a silent no-op.
	d.Emit(context.Background(), newViolationEvent(EventReset, time.Now()))
	if sink.count() != 20 {
		t.Fatal("emit after close delivered an event")
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := newLedgerDispatcher(LedgerConfig{Enabled: false}, &recordingSink{})
	if d != nil {
		t.Fatal("disabled dispatcher not nil")
	}
	// All methods tolerate the nil receiver.
	d.Emit(context.Background(), ViolationEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports drops")
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	ev := newViolationEvent(EventBlocked, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ev.Operation = "sign-in"
	ev.Identifier = "203.0.113.7"
	ev.IdentifierType = "ip"
	ev.ViolationCount = 3
	sink.Emit(context.Background(), ev)
	sink.Emit(context.Background(), newViolationEvent(EventCheckpoint, time.Now()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2", len(lines))
	}

	var decoded ViolationEvent
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Kind != EventBlocked || decoded.Operation != "sign-in" || decoded.ViolationCount != 3 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestChannelSinkRespectsContext(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Emit(context.Background(), newViolationEvent(EventBlocked, time.Now()))

	// Buffer full; a cancelled context must unblock the emit.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		sink.Emit(ctx, newViolationEvent(EventBlocked, time.Now()))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit ignored cancelled context")
	}
}

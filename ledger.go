package authlimit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a violation ledger event.
type EventKind string

const (
	// EventBlocked records a block decision against a key.
	EventBlocked EventKind = "blocked"
	// EventReset records an explicit reset after business-level success.
	EventReset EventKind = "reset"
	// EventCheckpoint records a durable flush of pending record mutations.
	EventCheckpoint EventKind = "checkpoint"
	// EventAllowed records an allowed attempt; emitted only when
	// LedgerConfig.EmitAllowed is set.
	EventAllowed EventKind = "allowed"
)

// ViolationEvent is one append-only ledger entry for security analytics.
// Events describe decisions already taken; consumers cannot influence the
// decision path.
type ViolationEvent struct {
	ID             string        `json:"id"`
	Kind           EventKind     `json:"kind"`
	Operation      string        `json:"operation,omitempty"`
	IdentifierType string        `json:"identifier_type,omitempty"`
	Identifier     string        `json:"identifier,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	ViolationCount int           `json:"violation_count,omitempty"`
	BlockDuration  time.Duration `json:"block_duration,omitempty"`
	Reason         string        `json:"reason,omitempty"`
}

func newViolationEvent(kind EventKind, at time.Time) ViolationEvent {
	return ViolationEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: at,
	}
}

// LedgerSink receives emitted violation events.
type LedgerSink interface {
	Emit(ctx context.Context, event ViolationEvent)
}

// NoOpSink drops every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, ViolationEvent) {}

// ChannelSink delivers events into a buffered channel, for hosts consuming
// the stream in-process.
type ChannelSink struct {
	events chan ViolationEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan ViolationEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event ViolationEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan ViolationEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line. Marshal or write failures
// are dropped; the ledger is best-effort by contract.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event ViolationEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

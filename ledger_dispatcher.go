package authlimit

import (
	"context"
	"sync"
	"sync/atomic"
)

// ledgerDispatcher relays violation events to the configured sink on a
// dedicated goroutine so emission can never block or fail a check decision.
// A nil dispatcher is a valid no-op.
type ledgerDispatcher struct {
	cfg       LedgerConfig
	sink      LedgerSink
	ch        chan ViolationEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newLedgerDispatcher(cfg LedgerConfig, sink LedgerSink) *ledgerDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &ledgerDispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan ViolationEvent, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *ledgerDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			d.drain()
			return
		}
	}
}

// drain delivers whatever is still buffered at shutdown.
func (d *ledgerDispatcher) drain() {
	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

func (d *ledgerDispatcher) Emit(ctx context.Context, event ViolationEvent) {
	if d == nil || d.closed.Load() {
		return
	}

	// Fast path: buffer has room, or shutdown already started.
	select {
	case d.ch <- event:
		return
	case <-d.done:
		return
	default:
	}

	if d.cfg.DropIfFull {
		d.dropped.Add(1)
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

func (d *ledgerDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *ledgerDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

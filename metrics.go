package authlimit

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram in the limiter metric set.
type MetricID uint16

const (
	// MetricCheckAllowed counts checks that returned an allowed decision.
	MetricCheckAllowed MetricID = iota
	// MetricCheckBlocked counts checks rejected by an active or new block.
	MetricCheckBlocked
	// MetricBlockApplied counts new block decisions (violations).
	MetricBlockApplied
	// MetricAccessListAllowed counts allow-list short circuits.
	MetricAccessListAllowed
	// MetricAccessListDenied counts deny-list short circuits.
	MetricAccessListDenied
	// MetricPolicyMiss counts checks against unregistered operations.
	MetricPolicyMiss
	// MetricStoreFallback counts cache misses served by the durable store.
	MetricStoreFallback
	// MetricFailOpen counts checks allowed because the durable store was
	// unreachable on a cold key.
	MetricFailOpen
	// MetricReset counts explicit resets after business-level success.
	MetricReset
	// MetricEvicted counts records evicted from the in-process cache.
	MetricEvicted
	// MetricCheckpointSaved counts records flushed durably.
	MetricCheckpointSaved
	// MetricCheckpointError counts durable writes dropped after retries.
	MetricCheckpointError
	// MetricCheckLatency is the check-path latency histogram.
	MetricCheckLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each hot counter on its own cache line so concurrent
// checks do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the lock-free counter set updated inline by the limiter.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histogram
// buckets, consumed by the prometheus and otel exporters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a metric set honoring the given config.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counting is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments a counter. No-op when disabled or out of range.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add increments a counter by n, used by batch paths like eviction.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records a check latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricCheckLatency {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and histogram buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricCheckLatency].buckets[i])
		}
		s.Histograms[MetricCheckLatency] = buckets
	}

	return s
}

// bucketIndex maps a latency sample to its histogram bucket. Bounds are in
// microseconds; the check path is expected to sit in the lowest buckets and
// only store-fallback reads reach the upper ones.
func bucketIndex(d time.Duration) int {
	us := d.Microseconds()

	switch {
	case us <= 10:
		return 0
	case us <= 50:
		return 1
	case us <= 100:
		return 2
	case us <= 500:
		return 3
	case us <= 1000:
		return 4
	case us <= 10_000:
		return 5
	case us <= 100_000:
		return 6
	default:
		return 7
	}
}

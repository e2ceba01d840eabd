package internaldefs

import (
	authlimit "github.com/kvarle/authlimit"
)

// CounterDef names one exported counter metric.
type CounterDef struct {
	ID   authlimit.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram metric.
type HistogramDef struct {
	ID   authlimit.MetricID
	Name string
	Help string
}

// CounterDefs is the shared counter naming table for all exporters.
var CounterDefs = []CounterDef{
	{ID: authlimit.MetricCheckAllowed, Name: "authlimit_check_allowed_total", Help: "Checks that returned an allowed decision."},
	{ID: authlimit.MetricCheckBlocked, Name: "authlimit_check_blocked_total", Help: "Checks rejected by an active or new block."},
	{ID: authlimit.MetricBlockApplied, Name: "authlimit_block_applied_total", Help: "New block decisions (violations)."},
	{ID: authlimit.MetricAccessListAllowed, Name: "authlimit_accesslist_allowed_total", Help: "Allow-list short circuits."},
	{ID: authlimit.MetricAccessListDenied, Name: "authlimit_accesslist_denied_total", Help: "Deny-list short circuits."},
	{ID: authlimit.MetricPolicyMiss, Name: "authlimit_policy_miss_total", Help: "Checks against operations with no registered policy."},
	{ID: authlimit.MetricStoreFallback, Name: "authlimit_store_fallback_total", Help: "Cache misses served by the durable store."},
	{ID: authlimit.MetricFailOpen, Name: "authlimit_fail_open_total", Help: "Checks allowed because the durable store was unreachable."},
	{ID: authlimit.MetricReset, Name: "authlimit_reset_total", Help: "Explicit resets after business-level success."},
	{ID: authlimit.MetricEvicted, Name: "authlimit_evicted_total", Help: "Records evicted from the in-process cache."},
	{ID: authlimit.MetricCheckpointSaved, Name: "authlimit_checkpoint_saved_total", Help: "Records flushed durably."},
	{ID: authlimit.MetricCheckpointError, Name: "authlimit_checkpoint_error_total", Help: "Durable writes dropped after retries."},
}

// HistogramDefs is the shared histogram naming table for all exporters.
var HistogramDefs = []HistogramDef{
	{ID: authlimit.MetricCheckLatency, Name: "authlimit_check_latency_seconds", Help: "Check decision latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the core
// microsecond buckets.
var HistogramBounds = []string{
	"0.00001",
	"0.00005",
	"0.0001",
	"0.0005",
	"0.001",
	"0.01",
	"0.1",
	"+Inf",
}

// HistogramBoundSuffix renders each bound as an instrument name suffix.
var HistogramBoundSuffix = []string{
	"10us",
	"50us",
	"100us",
	"500us",
	"1ms",
	"10ms",
	"100ms",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

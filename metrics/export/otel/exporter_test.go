package otel

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	authlimit "github.com/kvarle/authlimit"
)

type stubSource struct {
	snapshot authlimit.MetricsSnapshot
	dropped  uint64
}

func (s *stubSource) MetricsSnapshot() authlimit.MetricsSnapshot { return s.snapshot }
func (s *stubSource) LedgerDropped() uint64                      { return s.dropped }

func testSource() *stubSource {
	return &stubSource{
		snapshot: authlimit.MetricsSnapshot{
			Counters: map[authlimit.MetricID]uint64{
				authlimit.MetricCheckAllowed: 42,
				authlimit.MetricBlockApplied: 3,
			},
			Histograms: map[authlimit.MetricID][]uint64{
				authlimit.MetricCheckLatency: {3, 2, 1, 0, 0, 0, 0, 1},
			},
		},
		dropped: 9,
	}
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	values := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			}
		}
	}
	return values
}

func TestOTelExporterObservesSnapshot(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	exporter, err := NewOTelExporterFromSource(provider.Meter("authlimit-test"), testSource())
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	defer exporter.Close()

	values := collect(t, reader)

	if got := values["authlimit_check_allowed_total"]; got != 42 {
		t.Fatalf("allowed = %d, want 42", got)
	}
	if got := values["authlimit_block_applied_total"]; got != 3 {
		t.Fatalf("blocks = %d, want 3", got)
	}
	if got := values["authlimit_ledger_dropped_total"]; got != 9 {
		t.Fatalf("dropped = %d, want 9", got)
	}

	// Bucket gauges are cumulative.
	if got := values["authlimit_check_latency_seconds_bucket_le_10us"]; got != 3 {
		t.Fatalf("first bucket = %d, want 3", got)
	}
	if got := values["authlimit_check_latency_seconds_bucket_le_inf"]; got != 7 {
		t.Fatalf("inf bucket = %d, want 7", got)
	}
	if got := values["authlimit_check_latency_seconds_count"]; got != 7 {
		t.Fatalf("count = %d, want 7", got)
	}
}

func TestOTelExporterRejectsNilInputs(t *testing.T) {
	if _, err := NewOTelExporterFromSource(nil, testSource()); err != ErrNilMeter {
		t.Fatalf("nil meter: %v", err)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	if _, err := NewOTelExporterFromSource(provider.Meter("t"), nil); err != ErrNilSource {
		t.Fatalf("nil source: %v", err)
	}
}

func TestOTelExporterCloseUnregisters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	src := testSource()
	exporter, err := NewOTelExporterFromSource(provider.Meter("authlimit-test"), src)
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Closing twice stays safe.
	if err := exporter.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

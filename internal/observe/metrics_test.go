package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsCreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordCycle(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCycle(ctx, 120*time.Millisecond, true)
	m.RecordCycle(ctx, 80*time.Millisecond, false)
	m.RecordCycle(ctx, 90*time.Millisecond, false)

	rm := collect(t, reader)

	hist := findMetric(rm, "parley.cycle.duration")
	if hist == nil {
		t.Fatal("parley.cycle.duration not found")
	}
	hd, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", hist.Data)
	}
	var count uint64
	for _, dp := range hd.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Fatalf("histogram count = %d, want 3", count)
	}

	decisions := findMetric(rm, "parley.decisions")
	if decisions == nil {
		t.Fatal("parley.decisions not found")
	}
	sum, ok := decisions.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", decisions.Data)
	}
	byVerdict := map[string]int64{}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key("verdict")); ok {
			byVerdict[v.AsString()] = dp.Value
		}
	}
	if byVerdict["respond"] != 1 || byVerdict["wait"] != 2 {
		t.Fatalf("decisions by verdict = %v", byVerdict)
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordResponse(ctx)
	m.RecordChange(ctx)
	m.RecordChange(ctx)
	m.RecordDropped(ctx)
	m.RecordCycleError(ctx)
	m.MonitorStarted(ctx)
	m.MonitorStarted(ctx)
	m.MonitorStopped(ctx)

	rm := collect(t, reader)

	wants := map[string]int64{
		"parley.responses":          1,
		"parley.transcript.changes": 2,
		"parley.cycles.dropped":     1,
		"parley.cycles.errors":      1,
		"parley.monitors.active":    1,
	}
	for name, want := range wants {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("%s not found", name)
		}
		sum, ok := met.Data.(metricdata.Sum[int64])
		if !ok {
			t.Fatalf("%s: unexpected data type %T", name, met.Data)
		}
		var total int64
		for _, dp := range sum.DataPoints {
			total += dp.Value
		}
		if total != want {
			t.Errorf("%s = %d, want %d", name, total, want)
		}
	}
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// None of these may panic.
	m.RecordCycle(ctx, time.Second, true)
	m.RecordResponse(ctx)
	m.RecordChange(ctx)
	m.RecordDropped(ctx)
	m.RecordCycleError(ctx)
	m.MonitorStarted(ctx)
	m.MonitorStopped(ctx)
}

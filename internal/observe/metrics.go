// Package observe provides observability primitives for parley:
// OpenTelemetry metrics, tracing, and the Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter is wired in by [InitProvider] so that metrics can be scraped via
// the standard /metrics endpoint. Tests should use [NewMetrics] with a
// custom [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all parley metrics.
const meterName = "github.com/voxlane/parley"

// Metrics holds all OpenTelemetry metric instruments for the monitor
// pipeline. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation.
//
// A nil *Metrics is valid: every Record* method is a no-op on nil, so
// callers never need to branch on whether observability is configured.
type Metrics struct {
	// CycleDuration tracks the wall-clock time of one full decide-then-
	// optionally-generate cycle.
	CycleDuration metric.Float64Histogram

	// Decisions counts analyzer verdicts. Attributes: "verdict"
	// ("respond"/"wait").
	Decisions metric.Int64Counter

	// Responses counts successfully generated responses.
	Responses metric.Int64Counter

	// TranscriptChanges counts observed transcript change events.
	TranscriptChanges metric.Int64Counter

	// DroppedCycles counts debounce fires dropped because a cycle was
	// already in flight.
	DroppedCycles metric.Int64Counter

	// CycleErrors counts cycles aborted by an analysis or generation error.
	CycleErrors metric.Int64Counter

	// ActiveMonitors tracks the number of started, not-yet-stopped monitors.
	ActiveMonitors metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// debounced cycles that may include a provider round trip.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CycleDuration, err = m.Float64Histogram("parley.cycle.duration",
		metric.WithDescription("Duration of one decide-then-generate cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Decisions, err = m.Int64Counter("parley.decisions",
		metric.WithDescription("Analyzer verdicts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Responses, err = m.Int64Counter("parley.responses",
		metric.WithDescription("Successfully generated responses."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptChanges, err = m.Int64Counter("parley.transcript.changes",
		metric.WithDescription("Observed transcript change events."),
	); err != nil {
		return nil, err
	}
	if met.DroppedCycles, err = m.Int64Counter("parley.cycles.dropped",
		metric.WithDescription("Debounce fires dropped due to an in-flight cycle."),
	); err != nil {
		return nil, err
	}
	if met.CycleErrors, err = m.Int64Counter("parley.cycles.errors",
		metric.WithDescription("Cycles aborted by an analysis or generation error."),
	); err != nil {
		return nil, err
	}
	if met.ActiveMonitors, err = m.Int64UpDownCounter("parley.monitors.active",
		metric.WithDescription("Monitors currently observing a transcript."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] instance backed by the
// globally registered meter provider. Instrument-creation failures degrade
// to a nil (no-op) Metrics.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err == nil {
			defaultMetrics = m
		}
	})
	return defaultMetrics
}

// RecordCycle records one finished cycle with its verdict.
func (m *Metrics) RecordCycle(ctx context.Context, d time.Duration, shouldRespond bool) {
	if m == nil {
		return
	}
	verdict := "wait"
	if shouldRespond {
		verdict = "respond"
	}
	m.CycleDuration.Record(ctx, d.Seconds())
	m.Decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

// RecordResponse counts one successfully generated response.
func (m *Metrics) RecordResponse(ctx context.Context) {
	if m == nil {
		return
	}
	m.Responses.Add(ctx, 1)
}

// RecordChange counts one observed transcript change.
func (m *Metrics) RecordChange(ctx context.Context) {
	if m == nil {
		return
	}
	m.TranscriptChanges.Add(ctx, 1)
}

// RecordDropped counts one dropped debounce fire.
func (m *Metrics) RecordDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.DroppedCycles.Add(ctx, 1)
}

// RecordCycleError counts one aborted cycle.
func (m *Metrics) RecordCycleError(ctx context.Context) {
	if m == nil {
		return
	}
	m.CycleErrors.Add(ctx, 1)
}

// MonitorStarted increments the active-monitor gauge.
func (m *Metrics) MonitorStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveMonitors.Add(ctx, 1)
}

// MonitorStopped decrements the active-monitor gauge.
func (m *Metrics) MonitorStopped(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveMonitors.Add(ctx, -1)
}

// Package observe provides observability primitives for the dubbing
// pipeline: OpenTelemetry metrics with a Prometheus exporter bridge and the
// structured-logging setup shared by all stages.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pipeline metrics.
const meterName = "github.com/anuvox/anuvox"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks wall-clock time per pipeline stage. Use with
	// attribute.String("stage", ...).
	StageDuration metric.Float64Histogram

	// SegmentsProcessed counts segments handled per stage and outcome. Use
	// with attribute.String("stage", ...), attribute.String("status", ...).
	SegmentsProcessed metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...),
	//   attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors by provider and kind.
	ProviderErrors metric.Int64Counter

	// AlignmentQuality counts aligned segments per quality class. Use with
	// attribute.String("quality", ...).
	AlignmentQuality metric.Int64Counter

	// SpeedFactor records the applied time-stretch factor per segment.
	SpeedFactor metric.Float64Histogram

	// ActiveSessions tracks sessions currently being processed.
	ActiveSessions metric.Int64UpDownCounter
}

// stageBuckets defines histogram boundaries (seconds) sized for batch stage
// durations rather than interactive latencies.
var stageBuckets = []float64{
	0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// speedBuckets spans the usable atempo range.
var speedBuckets = []float64{
	0.5, 0.6, 0.8, 0.9, 1.0, 1.1, 1.25, 1.5, 1.75, 2.0, 4.0,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("anuvox.stage.duration",
		metric.WithDescription("Wall-clock duration of a pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentsProcessed, err = m.Int64Counter("anuvox.segments.processed",
		metric.WithDescription("Segments processed by stage and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("anuvox.provider.requests",
		metric.WithDescription("Provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("anuvox.provider.errors",
		metric.WithDescription("Provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.AlignmentQuality, err = m.Int64Counter("anuvox.alignment.quality",
		metric.WithDescription("Aligned segments by quality class."),
	); err != nil {
		return nil, err
	}
	if met.SpeedFactor, err = m.Float64Histogram("anuvox.alignment.speed_factor",
		metric.WithDescription("Applied time-stretch speed factor per segment."),
		metric.WithExplicitBucketBoundaries(speedBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("anuvox.active_sessions",
		metric.WithDescription("Sessions currently being processed."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStage records one completed stage run.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordSegment counts one processed segment for a stage.
func (m *Metrics) RecordSegment(ctx context.Context, stage, status string) {
	m.SegmentsProcessed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
}

// RecordProviderRequest records a provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordAlignment records the outcome of one segment alignment.
func (m *Metrics) RecordAlignment(ctx context.Context, quality string, speedFactor float64) {
	m.AlignmentQuality.Add(ctx, 1,
		metric.WithAttributes(attribute.String("quality", quality)),
	)
	m.SpeedFactor.Record(ctx, speedFactor)
}

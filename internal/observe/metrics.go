// Package observe provides application-wide observability primitives for
// StoryVA: OpenTelemetry metrics, tracing helpers, and HTTP middleware that
// ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all StoryVA metrics.
const meterName = "github.com/storyva/storyva"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ValidateDuration tracks markup validation latency.
	ValidateDuration metric.Float64Histogram

	// DiffDuration tracks diff parse/generate latency.
	DiffDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency per director turn.
	LLMDuration metric.Float64Histogram

	// RetrievalDuration tracks technique library search latency.
	RetrievalDuration metric.Float64Histogram

	// PreviewDuration tracks end-to-end audio preview latency.
	PreviewDuration metric.Float64Histogram

	// SynthesisDuration tracks the TTS synthesis call inside a preview.
	// Use with attribute: attribute.String("provider", ...).
	SynthesisDuration metric.Float64Histogram

	// ToolExecutionDuration tracks director tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ValidationFailures counts markup validations that produced errors.
	// Use with attribute: attribute.String("kind", ...).
	ValidationFailures metric.Int64Counter

	// DiffsStaged counts emotion diffs staged for user approval.
	DiffsStaged metric.Int64Counter

	// DiffsApplied counts emotion diffs applied to a story.
	DiffsApplied metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live story sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// both sub-millisecond validation work and multi-second synthesis calls.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ValidateDuration, err = m.Float64Histogram("storyva.validate.duration",
		metric.WithDescription("Latency of emotion markup validation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DiffDuration, err = m.Float64Histogram("storyva.diff.duration",
		metric.WithDescription("Latency of diff parsing and generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("storyva.llm.duration",
		metric.WithDescription("Latency of LLM inference per director turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("storyva.retrieval.duration",
		metric.WithDescription("Latency of technique library search."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PreviewDuration, err = m.Float64Histogram("storyva.preview.duration",
		metric.WithDescription("End-to-end latency of audio preview rendering."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("storyva.synthesis.duration",
		metric.WithDescription("Latency of TTS synthesis per preview, by provider."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("storyva.tool_execution.duration",
		metric.WithDescription("Latency of director tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ToolCalls, err = m.Int64Counter("storyva.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ValidationFailures, err = m.Int64Counter("storyva.validation.failures",
		metric.WithDescription("Total markup validations that produced errors, by kind."),
	); err != nil {
		return nil, err
	}
	if met.DiffsStaged, err = m.Int64Counter("storyva.diffs.staged",
		metric.WithDescription("Total emotion diffs staged for user approval."),
	); err != nil {
		return nil, err
	}
	if met.DiffsApplied, err = m.Int64Counter("storyva.diffs.applied",
		metric.WithDescription("Total emotion diffs applied to a story."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("storyva.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("storyva.active_sessions",
		metric.WithDescription("Number of live story sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("storyva.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records a tool call counter increment with the standard
// attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordValidationFailure records a failed markup validation by kind
// ("unknown_tag", "placement", "parens").
func (m *Metrics) RecordValidationFailure(ctx context.Context, kind string) {
	m.ValidationFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

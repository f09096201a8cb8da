// Package observe provides application-wide observability for speechset:
// OpenTelemetry metrics, tracing, and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// through a Prometheus bridge (see [InitProvider]) so they can be scraped at
// /metrics. A package-level default [Metrics] instance ([DefaultMetrics]) is
// provided for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all speechset metrics.
const meterName = "github.com/speechset/speechset"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// TranscribeDuration tracks AI transcription latency.
	TranscribeDuration metric.Float64Histogram

	// NormalizeDuration tracks AI text-normalization latency.
	NormalizeDuration metric.Float64Histogram

	// ExportDuration tracks dataset export assembly latency.
	ExportDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ImportedRows counts imported transcript rows by outcome
	// ("applied", "ambiguous", "missing").
	ImportedRows metric.Int64Counter

	// Exports counts dataset exports. Use with attributes:
	//   attribute.String("format", ...), attribute.String("output", ...)
	Exports metric.Int64Counter

	// StoredTranscripts tracks the number of transcripts currently held.
	StoredTranscripts metric.Int64UpDownCounter

	// UploadedFiles tracks the number of audio files in the working set.
	UploadedFiles metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). AI calls
// routinely take several seconds, so the upper buckets are generous.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscribeDuration, err = m.Float64Histogram("speechset.transcribe.duration",
		metric.WithDescription("Latency of AI audio transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NormalizeDuration, err = m.Float64Histogram("speechset.normalize.duration",
		metric.WithDescription("Latency of AI text normalization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExportDuration, err = m.Float64Histogram("speechset.export.duration",
		metric.WithDescription("Latency of dataset export assembly."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("speechset.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("speechset.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ImportedRows, err = m.Int64Counter("speechset.import.rows",
		metric.WithDescription("Total imported transcript rows by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Exports, err = m.Int64Counter("speechset.exports",
		metric.WithDescription("Total dataset exports by format and output type."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.StoredTranscripts, err = m.Int64UpDownCounter("speechset.transcripts",
		metric.WithDescription("Number of transcripts currently stored."),
	); err != nil {
		return nil, err
	}
	if met.UploadedFiles, err = m.Int64UpDownCounter("speechset.files",
		metric.WithDescription("Number of audio files in the working set."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("speechset.http.request.duration",
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

// RecordProviderRequest records a provider request with the standard
// attribute set. kind is "transcribe" or "normalize".
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

// RecordImport records the per-outcome row counts of one import run.
func (m *Metrics) RecordImport(ctx context.Context, applied, ambiguous, missing int) {
	m.ImportedRows.Add(ctx, int64(applied),
		metric.WithAttributes(attribute.String("outcome", "applied")))
	m.ImportedRows.Add(ctx, int64(ambiguous),
		metric.WithAttributes(attribute.String("outcome", "ambiguous")))
	m.ImportedRows.Add(ctx, int64(missing),
		metric.WithAttributes(attribute.String("outcome", "missing")))
}

// RecordExport records one completed dataset export.
func (m *Metrics) RecordExport(ctx context.Context, formatID, output string) {
	m.Exports.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("format", formatID),
			attribute.String("output", output),
		),
	)
}

// Package observe provides application-wide observability primitives for
// livesegment: OpenTelemetry metrics, per-utterance tracing, context-aware
// structured logging and instrumentation for the telemetry listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all livesegment metrics.
const meterName = "github.com/MrWong99/livesegment"

// Utterance outcomes recorded by [Metrics.RecordUtterance].
const (
	OutcomeCompleted = "completed" // closed by the endpointer
	OutcomeForced    = "forced"    // force-closed at shutdown
	OutcomeDropped   = "dropped"   // abandoned at shutdown
	OutcomeAborted   = "aborted"   // cut short by a fatal error
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Pipeline counters ---

	// Frames counts frames read from the audio source.
	Frames metric.Int64Counter

	// SpeechFrames counts speech frames fed to the decoder.
	SpeechFrames metric.Int64Counter

	// Utterances counts finished utterances. Use with attribute:
	//   attribute.String("outcome", ...)
	Utterances metric.Int64Counter

	// Hypotheses counts emitted hypotheses. Use with attribute:
	//   attribute.String("kind", "partial"|"final")
	Hypotheses metric.Int64Counter

	// --- Decoder ---

	// DecoderDuration tracks decoder call latency. Use with attribute:
	//   attribute.String("op", "start"|"process"|"end")
	DecoderDuration metric.Float64Histogram

	// DecoderErrors counts failed decoder calls by op.
	DecoderErrors metric.Int64Counter

	// --- Utterances ---

	// UtteranceDuration tracks the audio length of utterances in seconds.
	UtteranceDuration metric.Float64Histogram

	// UtteranceOpen is 1 while an utterance is open.
	UtteranceOpen metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks telemetry listener request time. Use with
	// attributes method, path and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// decoder calls, from a single streamed frame to a full batch inference.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// utteranceBuckets covers utterance lengths in seconds.
var utteranceBuckets = []float64{
	0.5, 1, 2, 3, 5, 8, 13, 21, 34, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.Frames, err = m.Int64Counter("livesegment.frames",
		metric.WithDescription("Total audio frames read from the source."),
	); err != nil {
		return nil, err
	}
	if met.SpeechFrames, err = m.Int64Counter("livesegment.speech_frames",
		metric.WithDescription("Total speech frames fed to the decoder."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("livesegment.utterances",
		metric.WithDescription("Total utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Hypotheses, err = m.Int64Counter("livesegment.hypotheses",
		metric.WithDescription("Total emitted hypotheses by kind."),
	); err != nil {
		return nil, err
	}

	// Decoder.
	if met.DecoderDuration, err = m.Float64Histogram("livesegment.decoder.duration",
		metric.WithDescription("Latency of decoder calls by operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DecoderErrors, err = m.Int64Counter("livesegment.decoder.errors",
		metric.WithDescription("Total failed decoder calls by operation."),
	); err != nil {
		return nil, err
	}

	// Utterances.
	if met.UtteranceDuration, err = m.Float64Histogram("livesegment.utterance.duration",
		metric.WithDescription("Audio length of utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(utteranceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceOpen, err = m.Int64UpDownCounter("livesegment.utterance.open",
		metric.WithDescription("1 while an utterance is open."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("livesegment.http.request.duration",
		metric.WithDescription("Telemetry listener request latency by method, path and status."),
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

// RecordDecoderCall records the latency of one decoder call and, if err is
// non-nil, a decoder error.
func (m *Metrics) RecordDecoderCall(ctx context.Context, op string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	m.DecoderDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.DecoderErrors.Add(ctx, 1, attrs)
	}
}

// RecordHypothesis increments the hypothesis counter for kind.
func (m *Metrics) RecordHypothesis(ctx context.Context, kind string) {
	m.Hypotheses.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordUtterance records a finished utterance with its outcome and audio
// length in seconds.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Utterances.Add(ctx, 1, attrs)
	m.UtteranceDuration.Record(ctx, seconds, attrs)
}

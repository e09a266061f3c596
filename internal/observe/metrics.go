// Package observe provides application-wide observability primitives for
// Crooner: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Crooner metrics.
const meterName = "github.com/crooner-live/crooner"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// RecognizerLatency tracks the delay between a word being sung and its
	// final transcript segment arriving.
	RecognizerLatency metric.Float64Histogram

	// LyricSyncDuration tracks lyric-service lookup latency.
	LyricSyncDuration metric.Float64Histogram

	// TimelineBuildDuration tracks lyric timeline construction time.
	TimelineBuildDuration metric.Float64Histogram

	// --- Counters ---

	// WordsClassified counts per-word classification decisions. Use with
	// attribute: attribute.String("classification", ...)
	WordsClassified metric.Int64Counter

	// SessionsCompleted counts finished sessions. Use with attribute:
	//   attribute.String("outcome", "complete"|"cancelled")
	SessionsCompleted metric.Int64Counter

	// LeaderboardWrites counts leaderboard submissions. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	LeaderboardWrites metric.Int64Counter

	// --- Error counters ---

	// RecognizerErrors counts recognizer stream failures. Use with
	// attribute: attribute.String("provider", ...)
	RecognizerErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live recording sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Final score distribution ---

	// SessionScore records the final aggregate of every completed session.
	SessionScore metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for live-transcription latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// scoreBuckets covers the 0–100 aggregate score range.
var scoreBuckets = []float64{
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecognizerLatency, err = m.Float64Histogram("crooner.recognizer.latency",
		metric.WithDescription("Delay between singing a word and receiving its final transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LyricSyncDuration, err = m.Float64Histogram("crooner.lyricsync.duration",
		metric.WithDescription("Latency of lyric-service lookups."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TimelineBuildDuration, err = m.Float64Histogram("crooner.timeline.build.duration",
		metric.WithDescription("Latency of lyric timeline construction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WordsClassified, err = m.Int64Counter("crooner.words.classified",
		metric.WithDescription("Total per-word classification decisions by classification."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("crooner.sessions.completed",
		metric.WithDescription("Total finished sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.LeaderboardWrites, err = m.Int64Counter("crooner.leaderboard.writes",
		metric.WithDescription("Total leaderboard submissions by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.RecognizerErrors, err = m.Int64Counter("crooner.recognizer.errors",
		metric.WithDescription("Total recognizer stream failures by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("crooner.active_sessions",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}

	// Score distribution.
	if met.SessionScore, err = m.Float64Histogram("crooner.session.score",
		metric.WithDescription("Final aggregate score of completed sessions."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("crooner.http.request.duration",
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

// RecordClassification is a convenience method that records one per-word
// classification decision.
func (m *Metrics) RecordClassification(ctx context.Context, classification string) {
	m.WordsClassified.Add(ctx, 1,
		metric.WithAttributes(attribute.String("classification", classification)),
	)
}

// RecordSessionCompleted is a convenience method that records a finished
// session and, for completed (not cancelled) sessions, its final score.
func (m *Metrics) RecordSessionCompleted(ctx context.Context, outcome string, score float64) {
	m.SessionsCompleted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	if outcome == "complete" {
		m.SessionScore.Record(ctx, score)
	}
}

// RecordLeaderboardWrite is a convenience method that records a leaderboard
// submission attempt.
func (m *Metrics) RecordLeaderboardWrite(ctx context.Context, status string) {
	m.LeaderboardWrites.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordRecognizerError is a convenience method that records a recognizer
// stream failure.
func (m *Metrics) RecordRecognizerError(ctx context.Context, provider string) {
	m.RecognizerErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

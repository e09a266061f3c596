package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"crooner.recognizer.latency", m.RecognizerLatency},
		{"crooner.lyricsync.duration", m.LyricSyncDuration},
		{"crooner.timeline.build.duration", m.TimelineBuildDuration},
		{"crooner.session.score", m.SessionScore},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordClassification_CountsByAttribute(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordClassification(ctx, "exact")
	m.RecordClassification(ctx, "exact")
	m.RecordClassification(ctx, "close")

	rm := collect(t, reader)
	met := findMetric(rm, "crooner.words.classified")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}

	want := map[string]int64{"exact": 2, "close": 1}
	for _, dp := range sum.DataPoints {
		v, ok := dp.Attributes.Value(attribute.Key("classification"))
		if !ok {
			t.Fatal("data point missing classification attribute")
		}
		if got := dp.Value; got != want[v.AsString()] {
			t.Errorf("count for %q = %d, want %d", v.AsString(), got, want[v.AsString()])
		}
	}
}

func TestRecordSessionCompleted_ScoreOnlyForComplete(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSessionCompleted(ctx, "complete", 87.5)
	m.RecordSessionCompleted(ctx, "cancelled", 42)

	rm := collect(t, reader)

	met := findMetric(rm, "crooner.sessions.completed")
	if met == nil {
		t.Fatal("sessions.completed not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("sessions.completed is not a sum")
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("total completed = %d, want 2", total)
	}

	score := findMetric(rm, "crooner.session.score")
	if score == nil {
		t.Fatal("session.score not found")
	}
	hist, ok := score.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("session.score is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("session.score has no data points")
	}
	// The cancelled session must not contribute a score sample.
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("score sample count = %d, want 1", got)
	}
}

func TestRecordLeaderboardWrite(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLeaderboardWrite(ctx, "ok")
	m.RecordLeaderboardWrite(ctx, "error")
	m.RecordLeaderboardWrite(ctx, "ok")

	rm := collect(t, reader)
	met := findMetric(rm, "crooner.leaderboard.writes")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("total writes = %d, want 3", total)
	}
}

func TestRecordRecognizerError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRecognizerError(ctx, "deepgram")

	rm := collect(t, reader)
	met := findMetric(rm, "crooner.recognizer.errors")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 1 {
		t.Error("expected one recorded error")
	}
}

func TestActiveSessions_UpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "crooner.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 1 {
		t.Errorf("active sessions = %v, want 1", sum.DataPoints)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}

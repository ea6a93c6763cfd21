package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/seisqc/seisqc/pkg/interfaces"
)

func TestPromMetrics(t *testing.T) {
	p := NewPromMetrics()
	tags := map[string]string{interfaces.TagStream: "GE.APE..BHZ"}

	p.Gauge(interfaces.MetricAvailability, 99, tags)
	p.Gauge(interfaces.MetricAvailability, 97.5, tags)
	if got := testutil.ToFloat64(p.gauges[interfaces.MetricAvailability].vec.WithLabelValues("GE.APE..BHZ")); got != 97.5 {
		t.Fatalf("expected availability gauge 97.5, got %f", got)
	}

	p.Counter(interfaces.MetricReportsEmitted, 3, tags)
	p.Counter(interfaces.MetricReportsEmitted, 3, tags)
	if got := testutil.ToFloat64(p.counters[interfaces.MetricReportsEmitted].vec.WithLabelValues("GE.APE..BHZ")); got != 6 {
		t.Fatalf("expected reports counter 6, got %f", got)
	}

	p.Timer(interfaces.MetricTickDuration, 5*time.Millisecond, nil)
	if n := testutil.CollectAndCount(p.histos[interfaces.MetricTickDuration+".seconds"].vec); n != 1 {
		t.Fatalf("expected one tick histogram series, got %d", n)
	}
}

func TestPromMetricsDropsMismatchedLabels(t *testing.T) {
	p := NewPromMetrics()

	p.Gauge(interfaces.MetricBufferLength, 10, map[string]string{interfaces.TagStream: "A"})
	// Different label set for the same name must not panic.
	p.Gauge(interfaces.MetricBufferLength, 20, map[string]string{interfaces.TagSink: "x"})
	p.Gauge(interfaces.MetricBufferLength, 30, nil)

	if got := testutil.ToFloat64(p.gauges[interfaces.MetricBufferLength].vec.WithLabelValues("A")); got != 10 {
		t.Fatalf("expected 10, got %f", got)
	}
}

func TestPromMetricsHandler(t *testing.T) {
	p := NewPromMetrics()
	p.Gauge(interfaces.MetricStreamsActive, 2, nil)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "scqc_streams_active 2") {
		t.Errorf("metrics output missing gauge:\n%s", rec.Body.String())
	}
}

func TestLogMetricsBuffering(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewLogMetrics(WithLogger(zap.New(core)), WithBufferSize(2))

	m.Counter(interfaces.MetricEntriesAccepted, 1, nil)
	if logs.Len() != 0 {
		t.Fatalf("expected buffered metric, got %d log lines", logs.Len())
	}

	m.Gauge(interfaces.MetricAvailability, 50, map[string]string{"stream": "X"})
	if logs.Len() != 2 {
		t.Fatalf("expected flush at buffer size, got %d log lines", logs.Len())
	}

	m.Timer(interfaces.MetricTickDuration, time.Second, nil)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if logs.Len() != 3 {
		t.Fatalf("expected close to flush, got %d log lines", logs.Len())
	}
	if logs.All()[1].Message != interfaces.MetricAvailability {
		t.Errorf("unexpected message %q", logs.All()[1].Message)
	}
}

func TestLogMetricsMinLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewLogMetrics(WithLogger(zap.New(core)), WithMinLevel(LogLevelTimers))

	m.Counter("c", 1, nil)
	m.Gauge("g", 1, nil)
	m.Timer("t", time.Millisecond, nil)

	if logs.Len() != 1 {
		t.Errorf("expected only the timer to be logged, got %d", logs.Len())
	}
}

func TestNoopMetrics(t *testing.T) {
	var m interfaces.MetricsExporter = NewNoopMetrics()
	m.Counter("c", 1, nil)
	m.Gauge("g", 1, map[string]string{"stream": "GE.APE..BHZ"})
	m.Timer("t", time.Second, nil)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}

package metrics

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seisqc/seisqc/pkg/interfaces"
)

// LogMetrics writes metrics to a zap logger.
// Useful for debugging and development.
type LogMetrics struct {
	mu         sync.Mutex
	logger     *zap.Logger
	minLevel   LogLevel
	buffer     []bufferedMetric
	bufferSize int
}

// LogLevel controls which metrics are logged.
type LogLevel int

const (
	LogLevelAll LogLevel = iota
	LogLevelTimers
	LogLevelNone
)

type bufferedMetric struct {
	kind  string
	name  string
	value zap.Field
	tags  map[string]string
}

// LogMetricsOption configures LogMetrics.
type LogMetricsOption func(*LogMetrics)

// WithLogger sets the destination logger.
func WithLogger(logger *zap.Logger) LogMetricsOption {
	return func(m *LogMetrics) {
		m.logger = logger
	}
}

// WithMinLevel sets the minimum log level.
func WithMinLevel(level LogLevel) LogMetricsOption {
	return func(m *LogMetrics) {
		m.minLevel = level
	}
}

// WithBufferSize sets the buffer size for batched logging.
func WithBufferSize(size int) LogMetricsOption {
	return func(m *LogMetrics) {
		m.bufferSize = size
	}
}

// NewLogMetrics creates a new log-based metrics exporter.
func NewLogMetrics(opts ...LogMetricsOption) *LogMetrics {
	m := &LogMetrics{
		logger:   zap.NewNop(),
		minLevel: LogLevelAll,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("metrics")
	return m
}

// Counter logs a counter metric.
func (m *LogMetrics) Counter(name string, value int64, tags map[string]string) {
	if m.minLevel >= LogLevelTimers {
		return
	}
	m.log("counter", name, zap.Int64("value", value), tags)
}

// Gauge logs a gauge metric.
func (m *LogMetrics) Gauge(name string, value float64, tags map[string]string) {
	if m.minLevel >= LogLevelTimers {
		return
	}
	m.log("gauge", name, zap.Float64("value", value), tags)
}

// Timer logs a timer metric.
func (m *LogMetrics) Timer(name string, duration time.Duration, tags map[string]string) {
	if m.minLevel >= LogLevelNone {
		return
	}
	m.log("timer", name, zap.Duration("value", duration), tags)
}

// Flush outputs any buffered metrics.
func (m *LogMetrics) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flushLocked()
	return m.logger.Sync()
}

// Close flushes and closes the exporter.
func (m *LogMetrics) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flushLocked()
	return nil
}

func (m *LogMetrics) log(kind, name string, value zap.Field, tags map[string]string) {
	metric := bufferedMetric{kind: kind, name: name, value: value, tags: tags}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bufferSize > 0 {
		m.buffer = append(m.buffer, metric)
		if len(m.buffer) >= m.bufferSize {
			m.flushLocked()
		}
		return
	}
	m.write(metric)
}

func (m *LogMetrics) flushLocked() {
	for _, metric := range m.buffer {
		m.write(metric)
	}
	m.buffer = nil
}

func (m *LogMetrics) write(metric bufferedMetric) {
	m.logger.Debug(metric.name,
		zap.String("type", metric.kind),
		metric.value,
		zap.Object("tags", sortedTags(metric.tags)),
	)
}

type sortedTags map[string]string

// MarshalLogObject renders tags in key order for stable output.
func (t sortedTags) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		enc.AddString(k, t[k])
	}
	return nil
}

// Verify interface compliance.
var _ interfaces.MetricsExporter = (*LogMetrics)(nil)

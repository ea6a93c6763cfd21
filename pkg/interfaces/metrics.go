// Package interfaces defines pluggable extension points for seisqc.
package interfaces

import "time"

// MetricsExporter exports metrics to a monitoring backend.
type MetricsExporter interface {
	// Counter increments a counter metric.
	Counter(name string, value int64, tags map[string]string)

	// Gauge sets a gauge metric to the specified value.
	Gauge(name string, value float64, tags map[string]string)

	// Timer records a duration.
	Timer(name string, duration time.Duration, tags map[string]string)

	// Close releases resources.
	Close() error
}

// Metric names used throughout the system.
const (
	// Feed metrics
	MetricEntriesAccepted  = "scqc.entries.accepted"
	MetricEntriesRejected  = "scqc.entries.rejected"
	MetricTimeoutsInjected = "scqc.timeouts.injected"
	MetricBufferLength     = "scqc.buffer.length_seconds"

	// Evaluation metrics
	MetricAvailability  = "scqc.availability.percent"
	MetricGapsCount     = "scqc.gaps.count"
	MetricOverlapsCount = "scqc.overlaps.count"
	MetricTickDuration  = "scqc.tick.duration"

	// Emission metrics
	MetricReportsEmitted = "scqc.reports.emitted"
	MetricSinkFailures   = "scqc.sink.failures"

	// Engine metrics
	MetricStreamsActive = "scqc.streams.active"
)

// Tag names.
const (
	TagStream    = "stream"
	TagPlugin    = "plugin"
	TagParameter = "parameter"
	TagSink      = "sink"
	TagReason    = "reason"
)

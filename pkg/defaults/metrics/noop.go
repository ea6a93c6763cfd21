// Package metrics provides the metrics exporters: no-op, zap log and
// Prometheus.
package metrics

import (
	"time"

	"github.com/seisqc/seisqc/pkg/interfaces"
)

// NoopMetrics discards everything. It is the default exporter of the
// engine, stream and emitter.
type NoopMetrics struct{}

var _ interfaces.MetricsExporter = NoopMetrics{}

// NewNoopMetrics returns a NoopMetrics.
func NewNoopMetrics() NoopMetrics { return NoopMetrics{} }

func (NoopMetrics) Counter(string, int64, map[string]string) {}
func (NoopMetrics) Gauge(string, float64, map[string]string) {}
func (NoopMetrics) Timer(string, time.Duration, map[string]string) {}
func (NoopMetrics) Close() error { return nil }

package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seisqc/seisqc/pkg/interfaces"
)

// PromMetrics exports metrics through a Prometheus registry.
//
// Vectors are created on first use of a metric name, with the label set
// taken from the tags of that first call. Later calls with a different
// label set for the same name are dropped.
type PromMetrics struct {
	mu        sync.Mutex
	namespace string
	registry  *prometheus.Registry

	counters map[string]*promVec[*prometheus.CounterVec]
	gauges   map[string]*promVec[*prometheus.GaugeVec]
	histos   map[string]*promVec[*prometheus.HistogramVec]
}

type promVec[V any] struct {
	vec    V
	labels []string
}

// NewPromMetrics creates an exporter backed by its own registry.
func NewPromMetrics() *PromMetrics {
	return NewPromMetricsWithRegistry(prometheus.NewRegistry())
}

// NewPromMetricsWithRegistry creates an exporter that registers into reg.
func NewPromMetricsWithRegistry(reg *prometheus.Registry) *PromMetrics {
	return &PromMetrics{
		registry: reg,
		counters: make(map[string]*promVec[*prometheus.CounterVec]),
		gauges:   make(map[string]*promVec[*prometheus.GaugeVec]),
		histos:   make(map[string]*promVec[*prometheus.HistogramVec]),
	}
}

// Registry returns the underlying registry.
func (p *PromMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Counter adds value to a counter.
func (p *PromMetrics) Counter(name string, value int64, tags map[string]string) {
	if value < 0 {
		return
	}
	p.mu.Lock()
	v, ok := p.counters[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: promName(name) + "_total",
			Help: "seisqc counter " + name,
		}, labels)
		if err := p.registry.Register(vec); err != nil {
			p.mu.Unlock()
			return
		}
		v = &promVec[*prometheus.CounterVec]{vec: vec, labels: labels}
		p.counters[name] = v
	}
	p.mu.Unlock()

	c, err := v.vec.GetMetricWith(labelValues(v.labels, tags))
	if err != nil {
		return
	}
	c.Add(float64(value))
}

// Gauge sets a gauge.
func (p *PromMetrics) Gauge(name string, value float64, tags map[string]string) {
	p.mu.Lock()
	v, ok := p.gauges[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: promName(name),
			Help: "seisqc gauge " + name,
		}, labels)
		if err := p.registry.Register(vec); err != nil {
			p.mu.Unlock()
			return
		}
		v = &promVec[*prometheus.GaugeVec]{vec: vec, labels: labels}
		p.gauges[name] = v
	}
	p.mu.Unlock()

	g, err := v.vec.GetMetricWith(labelValues(v.labels, tags))
	if err != nil {
		return
	}
	g.Set(value)
}

// Timer observes duration in seconds.
func (p *PromMetrics) Timer(name string, duration time.Duration, tags map[string]string) {
	p.observe(name+".seconds", duration.Seconds(), tags, prometheus.ExponentialBuckets(0.0001, 2, 14))
}

func (p *PromMetrics) observe(name string, value float64, tags map[string]string, buckets []float64) {
	p.mu.Lock()
	v, ok := p.histos[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    promName(name),
			Help:    "seisqc histogram " + name,
			Buckets: buckets,
		}, labels)
		if err := p.registry.Register(vec); err != nil {
			p.mu.Unlock()
			return
		}
		v = &promVec[*prometheus.HistogramVec]{vec: vec, labels: labels}
		p.histos[name] = v
	}
	p.mu.Unlock()

	h, err := v.vec.GetMetricWith(labelValues(v.labels, tags))
	if err != nil {
		return
	}
	h.Observe(value)
}

// Close does nothing.
func (p *PromMetrics) Close() error {
	return nil
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func labelValues(names []string, tags map[string]string) prometheus.Labels {
	if len(names) != len(tags) {
		return prometheus.Labels{"": ""}
	}
	labels := make(prometheus.Labels, len(names))
	for _, n := range names {
		v, ok := tags[n]
		if !ok {
			return prometheus.Labels{"": ""}
		}
		labels[n] = v
	}
	return labels
}

// Verify interface compliance.
var _ interfaces.MetricsExporter = (*PromMetrics)(nil)

package qc

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	defaultmetrics "github.com/seisqc/seisqc/pkg/defaults/metrics"
	"github.com/seisqc/seisqc/pkg/interfaces"
)

// DefaultTickInterval is the default report cadence.
const DefaultTickInterval = 10 * time.Second

// Item is one entry of the input feed.
type Item struct {
	StreamID  string
	Parameter Parameter
}

// Engine owns the stream drivers and runs the report cycle.
//
// Feed, Tick and SetHorizon must be called from one goroutine; Run does
// that on its own. Streams are created on first sight.
type Engine struct {
	factories []Factory
	emitter   *Emitter
	horizon   time.Duration
	interval  time.Duration
	streams   map[string]*Stream

	horizonCh chan time.Duration
	clock     func() time.Time
	logger    *zap.Logger
	metrics   interfaces.MetricsExporter
	tracer    trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHorizon sets the retention horizon of new streams.
func WithHorizon(horizon time.Duration) EngineOption {
	return func(e *Engine) {
		e.horizon = horizon
	}
}

// WithTickInterval sets the report cadence used by Run.
func WithTickInterval(interval time.Duration) EngineOption {
	return func(e *Engine) {
		e.interval = interval
	}
}

// WithEngineClock overrides the time source passed to Tick by Run.
func WithEngineClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEngineMetrics sets the metrics exporter.
func WithEngineMetrics(m interfaces.MetricsExporter) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer sets the tracer used for tick spans.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// NewEngine creates an engine running factories for every stream.
func NewEngine(factories []Factory, emitter *Emitter, opts ...EngineOption) *Engine {
	e := &Engine{
		factories: factories,
		emitter:   emitter,
		horizon:   DefaultRingBufferSize,
		interval:  DefaultTickInterval,
		streams:   make(map[string]*Stream),
		horizonCh: make(chan time.Duration, 1),
		clock:     time.Now,
		logger:    zap.NewNop(),
		metrics:   defaultmetrics.NewNoopMetrics(),
		tracer:    otel.Tracer("github.com/seisqc/seisqc/pkg/qc"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Horizon returns the retention horizon.
func (e *Engine) Horizon() time.Duration {
	return e.horizon
}

// Stream returns the driver of id, if it exists.
func (e *Engine) Stream(id string) (*Stream, bool) {
	s, ok := e.streams[id]
	return s, ok
}

// Streams returns the known stream IDs, sorted.
func (e *Engine) Streams() []string {
	ids := make([]string, 0, len(e.streams))
	for id := range e.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) stream(id string) *Stream {
	s, ok := e.streams[id]
	if ok {
		return s
	}

	s = NewStream(id, e.horizon, e.factories, e.emitter,
		WithStreamLogger(e.logger),
		WithStreamMetrics(e.metrics),
	)
	e.streams[id] = s
	e.metrics.Gauge(interfaces.MetricStreamsActive, float64(len(e.streams)), nil)
	e.logger.Info("new stream", zap.String("stream", id), zap.Strings("plugins", s.Plugins()))
	return s
}

// Feed routes item to its stream. A rejected entry is returned but
// leaves the engine usable.
func (e *Engine) Feed(ctx context.Context, item Item) error {
	return e.stream(item.StreamID).Feed(ctx, item.Parameter)
}

// Tick runs one report cycle over all streams in ID order and returns the
// number of reports emitted.
func (e *Engine) Tick(ctx context.Context, now time.Time) int {
	ctx, span := e.tracer.Start(ctx, "qc.tick",
		trace.WithAttributes(attribute.Int("streams", len(e.streams))),
	)
	defer span.End()

	start := time.Now()
	emitted := 0
	for _, id := range e.Streams() {
		if ctx.Err() != nil {
			break
		}
		emitted += e.streams[id].Tick(ctx, now)
	}

	span.SetAttributes(attribute.Int("reports", emitted))
	e.metrics.Timer(interfaces.MetricTickDuration, time.Since(start), nil)
	return emitted
}

// Flush runs a report cycle over the streams that received entries since
// their last tick. Idle streams are skipped so no timeouts are injected.
func (e *Engine) Flush(ctx context.Context, now time.Time) int {
	emitted := 0
	for _, id := range e.Streams() {
		if ctx.Err() != nil {
			break
		}
		if s := e.streams[id]; s.Dirty() {
			emitted += s.Tick(ctx, now)
		}
	}
	return emitted
}

// SetHorizon changes the retention horizon of all current and future
// streams. While Run is active the change is applied by the run loop.
func (e *Engine) SetHorizon(horizon time.Duration) {
	select {
	case e.horizonCh <- horizon:
	default:
		// Replace a pending change that Run has not picked up yet.
		select {
		case <-e.horizonCh:
		default:
		}
		e.horizonCh <- horizon
	}
}

func (e *Engine) applyHorizon(horizon time.Duration) {
	e.horizon = horizon
	for _, s := range e.streams {
		s.SetHorizon(horizon)
	}
	e.logger.Info("retention horizon changed", zap.Duration("horizon", horizon))
}

// ApplyPending applies a horizon change queued by SetHorizon. Run calls it
// on its own; callers driving Feed and Tick directly call it themselves.
func (e *Engine) ApplyPending() {
	select {
	case h := <-e.horizonCh:
		e.applyHorizon(h)
	default:
	}
}

// Run drives the engine until ctx is cancelled or feed is closed. It
// consumes feed and ticks every interval. On return all buffers are
// released.
func (e *Engine) Run(ctx context.Context, feed <-chan Item) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	defer e.Release()

	e.logger.Info("engine started",
		zap.Duration("tick_interval", e.interval),
		zap.Duration("horizon", e.horizon),
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping", zap.Error(ctx.Err()))
			return ctx.Err()

		case h := <-e.horizonCh:
			e.applyHorizon(h)

		case item, ok := <-feed:
			if !ok {
				n := e.Flush(ctx, e.clock())
				e.logger.Info("feed closed", zap.Int("reports", n))
				return nil
			}
			// Rejections are logged and counted by the stream.
			_ = e.Feed(ctx, item)

		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			e.Tick(ctx, e.clock())
		}
	}
}

// Release drops every stream and its buffers.
func (e *Engine) Release() {
	for id, s := range e.streams {
		s.Release()
		delete(e.streams, id)
	}
	e.metrics.Gauge(interfaces.MetricStreamsActive, 0, nil)
}

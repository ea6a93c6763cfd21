package qc

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	defaultmetrics "github.com/seisqc/seisqc/pkg/defaults/metrics"
	qcerrors "github.com/seisqc/seisqc/pkg/errors"
	"github.com/seisqc/seisqc/pkg/interfaces"
)

// Stream drives the plugins of a single stream: it buffers incoming
// entries, injects timeouts on idle ticks and emits reports.
//
// Each plugin owns its own buffer so that timeout markers of one plugin do
// not leak into another.
type Stream struct {
	id      string
	slots   []*streamSlot
	emitter *Emitter
	logger  *zap.Logger
	metrics interfaces.MetricsExporter
	dirty   bool
}

type streamSlot struct {
	plugin *Plugin
	buffer *Buffer
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithStreamLogger sets the logger.
func WithStreamLogger(logger *zap.Logger) StreamOption {
	return func(s *Stream) {
		s.logger = logger
	}
}

// WithStreamMetrics sets the metrics exporter.
func WithStreamMetrics(m interfaces.MetricsExporter) StreamOption {
	return func(s *Stream) {
		s.metrics = m
	}
}

// NewStream creates the driver of streamID with one plugin per factory.
func NewStream(streamID string, horizon time.Duration, factories []Factory, emitter *Emitter, opts ...StreamOption) *Stream {
	s := &Stream{
		id:      streamID,
		emitter: emitter,
		logger:  zap.NewNop(),
		metrics: defaultmetrics.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("stream", streamID))

	for _, f := range factories {
		s.slots = append(s.slots, &streamSlot{
			plugin: f(streamID, s.logger),
			buffer: NewBuffer(horizon),
		})
	}
	return s
}

// ID returns the stream ID.
func (s *Stream) ID() string {
	return s.id
}

// Dirty reports whether an entry arrived since the last tick.
func (s *Stream) Dirty() bool {
	return s.dirty
}

// Plugins returns the names of the stream's plugins.
func (s *Stream) Plugins() []string {
	names := make([]string, 0, len(s.slots))
	for _, slot := range s.slots {
		names = append(names, slot.plugin.Name)
	}
	return names
}

// View returns the buffer view of the named plugin.
func (s *Stream) View(plugin string) (View, bool) {
	for _, slot := range s.slots {
		if slot.plugin.Name == plugin {
			return slot.buffer.View(), true
		}
	}
	return View{}, false
}

// Feed appends p to every plugin buffer. Invalid entries are rejected,
// logged and counted; the stream is not marked dirty in that case.
func (s *Stream) Feed(ctx context.Context, p Parameter) error {
	for _, slot := range s.slots {
		if err := slot.buffer.Push(s.id, p); err != nil {
			s.logger.Warn("rejected entry",
				zap.String("plugin", slot.plugin.Name),
				zap.Stringer("window", p.Window()),
				zap.Error(err),
			)
			s.metrics.Counter(interfaces.MetricEntriesRejected, 1, map[string]string{
				interfaces.TagStream: s.id,
				interfaces.TagReason: string(qcerrors.GetCode(err)),
			})
			return err
		}
	}

	s.dirty = true
	s.metrics.Counter(interfaces.MetricEntriesAccepted, 1, map[string]string{
		interfaces.TagStream: s.id,
	})
	return nil
}

// Tick runs one report cycle at now. If no entry arrived since the
// previous tick each plugin is asked for a timeout entry first. It returns
// the number of reports emitted.
func (s *Stream) Tick(ctx context.Context, now time.Time) int {
	idle := !s.dirty
	s.dirty = false

	emitted := 0
	for _, slot := range s.slots {
		if err := ctx.Err(); err != nil {
			return emitted
		}

		if idle {
			if !s.injectTimeout(slot, now) {
				continue
			}
		}
		emitted += s.report(ctx, slot)
	}
	return emitted
}

func (s *Stream) injectTimeout(slot *streamSlot, now time.Time) bool {
	if slot.plugin.Timeout == nil {
		return false
	}
	p, ok := slot.plugin.Timeout(slot.buffer.View(), now)
	if !ok {
		return false
	}
	if err := slot.buffer.Push(s.id, p); err != nil {
		s.logger.Error("timeout entry rejected",
			zap.String("plugin", slot.plugin.Name),
			zap.Error(err),
		)
		return false
	}
	s.metrics.Counter(interfaces.MetricTimeoutsInjected, 1, map[string]string{
		interfaces.TagStream: s.id,
		interfaces.TagPlugin: slot.plugin.Name,
	})
	return true
}

func (s *Stream) report(ctx context.Context, slot *streamSlot) int {
	v := slot.buffer.View()
	tags := map[string]string{
		interfaces.TagStream: s.id,
		interfaces.TagPlugin: slot.plugin.Name,
	}
	s.metrics.Gauge(interfaces.MetricBufferLength, v.Length(), tags)

	values := slot.plugin.GenerateReport(v)
	if values == nil {
		return 0
	}
	for i, name := range slot.plugin.ParameterNames {
		if i >= len(values) {
			break
		}
		s.metrics.Gauge(parameterMetric(name), values[i], tags)
	}
	return s.emitter.Emit(ctx, v, slot.plugin.ParameterNames, values)
}

func parameterMetric(name string) string {
	switch name {
	case "availability":
		return interfaces.MetricAvailability
	case "gaps count":
		return interfaces.MetricGapsCount
	case "overlaps count":
		return interfaces.MetricOverlapsCount
	default:
		return "scqc.parameter." + strings.ReplaceAll(name, " ", "_")
	}
}

// Release drops all buffered entries.
func (s *Stream) Release() {
	for _, slot := range s.slots {
		slot.buffer.Reset()
	}
	s.dirty = false
}

// SetHorizon changes the retention horizon of every plugin buffer.
func (s *Stream) SetHorizon(horizon time.Duration) {
	for _, slot := range s.slots {
		slot.buffer.SetHorizon(horizon)
	}
}

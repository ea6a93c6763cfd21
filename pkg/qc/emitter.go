package qc

import (
	"context"
	"time"

	"go.uber.org/zap"

	defaultmetrics "github.com/seisqc/seisqc/pkg/defaults/metrics"
	qcerrors "github.com/seisqc/seisqc/pkg/errors"
	"github.com/seisqc/seisqc/pkg/interfaces"
)

// Emitter shapes evaluation results into reports and hands them to a sink.
// Sink failures are logged and the reports dropped; they never reach the
// caller.
type Emitter struct {
	sink       Sink
	creatorID  string
	waveformID WaveformIDFunc
	clock      func() time.Time
	logger     *zap.Logger
	metrics    interfaces.MetricsExporter
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithCreatorID sets the creator ID stamped on reports.
func WithCreatorID(id string) EmitterOption {
	return func(e *Emitter) {
		e.creatorID = id
	}
}

// WithWaveformIDFunc sets the stream to waveform ID mapping.
func WithWaveformIDFunc(fn WaveformIDFunc) EmitterOption {
	return func(e *Emitter) {
		e.waveformID = fn
	}
}

// WithClock overrides the time source used for the created timestamp.
func WithClock(clock func() time.Time) EmitterOption {
	return func(e *Emitter) {
		e.clock = clock
	}
}

// WithEmitterLogger sets the logger.
func WithEmitterLogger(logger *zap.Logger) EmitterOption {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// WithEmitterMetrics sets the metrics exporter.
func WithEmitterMetrics(m interfaces.MetricsExporter) EmitterOption {
	return func(e *Emitter) {
		e.metrics = m
	}
}

// NewEmitter creates an emitter writing to sink.
func NewEmitter(sink Sink, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		sink:       sink,
		creatorID:  "scqc",
		waveformID: ParseStreamID,
		clock:      time.Now,
		logger:     zap.NewNop(),
		metrics:    defaultmetrics.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build returns one report per parameter name for the window of v. All
// reports share start, end, window length and creation time. names and
// values must have the same length.
func (e *Emitter) Build(v View, names []string, values []float64) []Report {
	created := e.clock().UTC()
	wid := e.waveformID(v.StreamID())
	start, end := v.StartTime(), v.EndTime()
	length := v.Length()

	reports := make([]Report, 0, len(names))
	for i, name := range names {
		reports = append(reports, Report{
			WaveformID:       wid,
			CreatorID:        e.creatorID,
			Created:          created,
			Start:            start,
			End:              end,
			Type:             ReportType,
			Parameter:        name,
			Value:            values[i],
			LowerUncertainty: 0,
			UpperUncertainty: 0,
			WindowLength:     length,
		})
	}
	return reports
}

// Emit builds the reports for v and sends them. It returns the number of
// reports delivered to the sink.
func (e *Emitter) Emit(ctx context.Context, v View, names []string, values []float64) int {
	if v.Empty() || len(names) == 0 {
		return 0
	}
	if len(values) != len(names) {
		e.logger.Error("parameter count mismatch",
			zap.String("stream", v.StreamID()),
			zap.Strings("names", names),
			zap.Int("values", len(values)),
		)
		return 0
	}

	reports := e.Build(v, names, values)
	tags := map[string]string{interfaces.TagSink: e.sink.Name()}

	if err := e.sink.Send(ctx, reports); err != nil {
		err = qcerrors.SinkFailure(e.sink.Name(), err)
		e.logger.Warn("dropping reports",
			zap.String("stream", v.StreamID()),
			zap.Int("count", len(reports)),
			zap.Error(err),
		)
		e.metrics.Counter(interfaces.MetricSinkFailures, 1, tags)
		return 0
	}

	e.metrics.Counter(interfaces.MetricReportsEmitted, int64(len(reports)), tags)
	return len(reports)
}

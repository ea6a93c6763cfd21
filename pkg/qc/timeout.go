package qc

import (
	"time"

	"go.uber.org/zap"
)

// TimeoutInjector produces timeout markers for a stalled stream so the
// missing span stays visible to the evaluator.
//
// Markers start at the end of the last real record. Consecutive markers
// without an intervening record share the same start.
type TimeoutInjector struct {
	logger            *zap.Logger
	lastRecordEndTime time.Time
}

// NewTimeoutInjector creates an injector. A nil logger disables logging.
func NewTimeoutInjector(logger *zap.Logger) *TimeoutInjector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeoutInjector{logger: logger}
}

// LastRecordEndTime returns the current anchor of timeout markers.
func (t *TimeoutInjector) LastRecordEndTime() time.Time {
	return t.lastRecordEndTime
}

// Tick returns the timeout marker to append for v at now. It returns false
// when v is empty.
func (t *TimeoutInjector) Tick(v View, now time.Time) (Parameter, bool) {
	if v.Empty() {
		t.logger.Debug("waveform buffer is empty", zap.String("stream", v.StreamID()))
		return Parameter{}, false
	}

	if back := v.Back(); !back.IsTimeout() {
		t.lastRecordEndTime = back.RecordEndTime
	}

	// A buffer that never held a real record has no anchor yet; use the
	// end of the newest marker.
	if t.lastRecordEndTime.IsZero() {
		t.lastRecordEndTime = v.Back().RecordEndTime
	}

	start := t.lastRecordEndTime
	if now.Before(start) {
		now = start
	}

	p := NewTimeout(start, now)
	t.logger.Debug("injecting timeout",
		zap.String("stream", v.StreamID()),
		zap.Time("start", p.RecordStartTime),
		zap.Time("end", p.RecordEndTime),
		zap.Float64("span", *p.Value),
	)
	return p, true
}

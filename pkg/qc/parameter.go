// Package qc implements streaming waveform quality control: per-stream
// buffers of record observations, the availability evaluator, timeout
// injection and report emission.
package qc

import (
	"fmt"
	"math"
	"time"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
	"github.com/seisqc/seisqc/pkg/timewindow"
)

// TimeoutSamplingFrequency is the wire value marking a timeout entry.
const TimeoutSamplingFrequency = -1.0

// Kind tags a Parameter as a real record or a synthetic timeout.
type Kind uint8

const (
	KindRecord Kind = iota
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Parameter is a single QC observation derived from one record, or a
// timeout marker inserted while a stream is stalled.
type Parameter struct {
	Kind Kind

	RecordStartTime time.Time
	RecordEndTime   time.Time

	// RecordSamplingFrequency in Hz. Zero for timeouts.
	RecordSamplingFrequency float64

	// Value is the optional scalar carried by the observation.
	Value *float64
}

// NewRecord builds a record observation. It returns an InvalidEntry error
// if the sampling frequency is not positive or end is not after start.
func NewRecord(start, end time.Time, fs float64) (Parameter, error) {
	p := Parameter{
		Kind:                    KindRecord,
		RecordStartTime:         timewindow.Normalize(start),
		RecordEndTime:           timewindow.Normalize(end),
		RecordSamplingFrequency: fs,
	}
	if err := p.Validate(); err != nil {
		return Parameter{}, err
	}
	return p, nil
}

// NewTimeout builds a timeout marker spanning [start, end). Its value is
// the span length in seconds.
func NewTimeout(start, end time.Time) Parameter {
	p := Parameter{
		Kind:            KindTimeout,
		RecordStartTime: timewindow.Normalize(start),
		RecordEndTime:   timewindow.Normalize(end),
	}
	return p.WithValue(timewindow.Diff(p.RecordEndTime, p.RecordStartTime))
}

// FromWire decodes the upstream representation where a sampling frequency
// of -1 denotes a timeout entry.
func FromWire(start, end time.Time, fs float64, value *float64) (Parameter, error) {
	var p Parameter
	if fs == TimeoutSamplingFrequency {
		p = Parameter{
			Kind:            KindTimeout,
			RecordStartTime: timewindow.Normalize(start),
			RecordEndTime:   timewindow.Normalize(end),
		}
	} else {
		p = Parameter{
			Kind:                    KindRecord,
			RecordStartTime:         timewindow.Normalize(start),
			RecordEndTime:           timewindow.Normalize(end),
			RecordSamplingFrequency: fs,
		}
	}
	if value != nil {
		v := *value
		p.Value = &v
	}
	if err := p.Validate(); err != nil {
		return Parameter{}, err
	}
	return p, nil
}

// WithValue returns a copy of p carrying v.
func (p Parameter) WithValue(v float64) Parameter {
	p.Value = &v
	return p
}

// IsTimeout reports whether p is a synthetic timeout marker.
func (p Parameter) IsTimeout() bool {
	return p.Kind == KindTimeout
}

// WireSamplingFrequency returns the sampling frequency in the upstream
// encoding, -1 for timeouts.
func (p Parameter) WireSamplingFrequency() float64 {
	if p.IsTimeout() {
		return TimeoutSamplingFrequency
	}
	return p.RecordSamplingFrequency
}

// Window returns [RecordStartTime, RecordEndTime).
func (p Parameter) Window() timewindow.Window {
	return timewindow.Window{Start: p.RecordStartTime, End: p.RecordEndTime}
}

// Validate checks the structural invariants of p.
func (p Parameter) Validate() error {
	if p.RecordStartTime.IsZero() || p.RecordEndTime.IsZero() {
		return qcerrors.InvalidEntry("missing record time")
	}
	if p.RecordEndTime.Before(p.RecordStartTime) {
		return qcerrors.InvalidEntry("record ends before it starts").
			WithContext("window", p.Window().String())
	}

	switch p.Kind {
	case KindTimeout:
		return nil
	case KindRecord:
		fs := p.RecordSamplingFrequency
		if math.IsNaN(fs) || math.IsInf(fs, 0) || fs <= 0 {
			return qcerrors.InvalidEntry("sampling frequency must be positive").
				WithContext("fs", fs)
		}
		if !p.RecordEndTime.After(p.RecordStartTime) {
			return qcerrors.InvalidEntry("record has zero length").
				WithContext("window", p.Window().String())
		}
		return nil
	default:
		return qcerrors.InvalidEntry(fmt.Sprintf("unknown kind %d", p.Kind))
	}
}

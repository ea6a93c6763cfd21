package qc

import (
	"math"
	"time"

	"github.com/seisqc/seisqc/pkg/timewindow"
)

// Result holds the outcome of an availability evaluation.
type Result struct {
	// Availability in percent, clamped to [0, 100].
	Availability float64
	Gaps         float64
	Overlaps     float64
}

// Values returns the result in the order of AvailabilityParameters.
func (r Result) Values() []float64 {
	return []float64{r.Availability, r.Gaps, r.Overlaps}
}

// roundHalfUp rounds x to the nearest integer, halves away from -inf.
func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

// Availability computes percent availability, gap count and overlap count
// of the entries in v, measured against the window [v.StartTime, v.EndTime)
// at the front entry's sampling rate.
//
// Timeout entries contribute no samples and no gap or overlap events. An
// empty view, a view starting with a timeout, or a window too short to
// hold a sample yields the zero Result.
func Availability(v View) Result {
	if v.Empty() {
		return Result{}
	}

	front := v.Front()
	if front.IsTimeout() {
		return Result{}
	}

	tw := v.Window()
	estimated := roundHalfUp(tw.Length() * front.RecordSamplingFrequency)
	if estimated <= 0 {
		return Result{}
	}

	var (
		effective int64
		gaps      int
		overlaps  int
		lastEnd   time.Time
		haveLast  bool
	)

	for p := range v.All() {
		if p.IsTimeout() {
			continue
		}

		fs := p.RecordSamplingFrequency
		rw := p.Window()
		samples := roundHalfUp(rw.Length() * fs)

		if haveLast {
			diff := timewindow.Diff(p.RecordStartTime, lastEnd)
			tolerance := 0.5 / fs
			if diff > tolerance {
				gaps++
			} else if diff < -tolerance {
				overlaps++
			}
		}
		lastEnd = p.RecordEndTime
		haveLast = true

		if tw.Contains(rw) {
			effective += samples
			continue
		}

		if rw.Contains(tw) {
			effective = estimated
			break
		}

		if tw.Overlaps(rw) {
			if dt := timewindow.Diff(tw.Start, rw.Start); dt > 0 {
				effective += samples - roundHalfUp(dt*fs)
				continue
			}
			if dt := timewindow.Diff(rw.End, tw.End); dt > 0 {
				effective += samples - roundHalfUp(dt*fs)
			}
		}
	}

	availability := 100 * float64(effective) / float64(estimated)
	if availability > 100 {
		availability = 100
	}

	return Result{
		Availability: availability,
		Gaps:         float64(gaps),
		Overlaps:     float64(overlaps),
	}
}

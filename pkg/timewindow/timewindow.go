// Package timewindow provides half-open time intervals over UTC with
// microsecond resolution.
package timewindow

import "time"

// Resolution is the finest time step the QC domain distinguishes.
const Resolution = time.Microsecond

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// New returns the window [start, end). Both ends are normalized to UTC
// at microsecond resolution.
func New(start, end time.Time) Window {
	return Window{Start: Normalize(start), End: Normalize(end)}
}

// Normalize converts t to UTC and truncates it to microseconds.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(Resolution)
}

// Diff returns a - b in seconds.
func Diff(a, b time.Time) float64 {
	return a.Sub(b).Seconds()
}

// FromSeconds builds a time from floating seconds since the Unix epoch,
// rounded to the nearest microsecond.
func FromSeconds(s float64) time.Time {
	us := int64(s*1e6 + copysignHalf(s))
	return time.UnixMicro(us).UTC()
}

func copysignHalf(s float64) float64 {
	if s < 0 {
		return -0.5
	}
	return 0.5
}

// Length returns End - Start in seconds.
func (w Window) Length() float64 {
	return Diff(w.End, w.Start)
}

// Contains reports whether o lies completely inside w.
func (w Window) Contains(o Window) bool {
	return !o.Start.Before(w.Start) && !w.End.Before(o.End)
}

// Overlaps reports whether w and o share any instant.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Valid reports whether End is not before Start.
func (w Window) Valid() bool {
	return !w.End.Before(w.Start)
}

// Empty reports whether the window has zero length.
func (w Window) Empty() bool {
	return w.End.Equal(w.Start)
}

// String renders the window in RFC3339 with microseconds.
func (w Window) String() string {
	const layout = "2006-01-02T15:04:05.000000Z"
	return "[" + w.Start.UTC().Format(layout) + ", " + w.End.UTC().Format(layout) + ")"
}

package qc

import (
	"iter"
	"time"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
	"github.com/seisqc/seisqc/pkg/timewindow"
)

// DefaultRingBufferSize is the default retention horizon.
const DefaultRingBufferSize = 300 * time.Second

// Buffer holds the QC parameters of one stream in arrival order.
//
// Entries are evicted from the head once the buffer spans more than the
// retention horizon. Eviction always removes whole entries and never
// removes the newest one. A Buffer is owned by a single driver and is not
// safe for concurrent use.
type Buffer struct {
	streamID string
	horizon  time.Duration
	entries  []Parameter
}

// NewBuffer creates a buffer with the given retention horizon.
// A horizon <= 0 disables retention.
func NewBuffer(horizon time.Duration) *Buffer {
	return &Buffer{horizon: horizon}
}

// StreamID returns the stream the buffer is bound to, if any.
func (b *Buffer) StreamID() string {
	return b.streamID
}

// Horizon returns the retention horizon.
func (b *Buffer) Horizon() time.Duration {
	return b.horizon
}

// SetHorizon changes the retention horizon and applies it immediately.
func (b *Buffer) SetHorizon(horizon time.Duration) {
	b.horizon = horizon
	b.evict()
}

// Push validates p and appends it. The first push binds the buffer to
// streamID; pushes for any other stream are rejected.
func (b *Buffer) Push(streamID string, p Parameter) error {
	if b.streamID != "" && streamID != b.streamID {
		return qcerrors.StreamMismatch(b.streamID, streamID)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	b.streamID = streamID
	b.entries = append(b.entries, p)
	b.evict()
	return nil
}

func (b *Buffer) evict() {
	if b.horizon <= 0 || len(b.entries) < 2 {
		return
	}

	end := b.entries[len(b.entries)-1].RecordEndTime
	drop := 0
	for drop < len(b.entries)-1 && end.Sub(b.entries[drop].RecordStartTime) > b.horizon {
		drop++
	}
	if drop == 0 {
		return
	}

	// Clear dropped slots so their values can be collected.
	clear(b.entries[:drop])
	b.entries = b.entries[drop:]
}

// Reset drops all entries and unbinds the stream.
func (b *Buffer) Reset() {
	b.entries = nil
	b.streamID = ""
}

// Empty reports whether the buffer holds no entries.
func (b *Buffer) Empty() bool {
	return len(b.entries) == 0
}

// Len returns the number of entries.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Front returns the oldest entry. It panics on an empty buffer.
func (b *Buffer) Front() Parameter {
	return b.entries[0]
}

// Back returns the newest entry. It panics on an empty buffer.
func (b *Buffer) Back() Parameter {
	return b.entries[len(b.entries)-1]
}

// StartTime returns the start of the oldest entry.
func (b *Buffer) StartTime() time.Time {
	return b.View().StartTime()
}

// EndTime returns the end of the newest entry.
func (b *Buffer) EndTime() time.Time {
	return b.View().EndTime()
}

// Length returns EndTime - StartTime in seconds.
func (b *Buffer) Length() float64 {
	return b.View().Length()
}

// View returns a read-only view of the current entries. The view is
// invalidated by the next Push, SetHorizon or Reset.
func (b *Buffer) View() View {
	return View{streamID: b.streamID, entries: b.entries}
}

// View is a read-only window onto a Buffer.
type View struct {
	streamID string
	entries  []Parameter
}

// NewView builds a view over entries for evaluation outside a Buffer.
// The slice must not be modified while the view is in use.
func NewView(streamID string, entries []Parameter) View {
	return View{streamID: streamID, entries: entries}
}

// StreamID returns the stream the entries belong to.
func (v View) StreamID() string { return v.streamID }

// Empty reports whether the view holds no entries.
func (v View) Empty() bool { return len(v.entries) == 0 }

// Len returns the number of entries.
func (v View) Len() int { return len(v.entries) }

// At returns the i-th entry in arrival order.
func (v View) At(i int) Parameter { return v.entries[i] }

// Front returns the oldest entry. It panics on an empty view.
func (v View) Front() Parameter { return v.entries[0] }

// Back returns the newest entry. It panics on an empty view.
func (v View) Back() Parameter { return v.entries[len(v.entries)-1] }

// All iterates entries in arrival order.
func (v View) All() iter.Seq[Parameter] {
	return func(yield func(Parameter) bool) {
		for _, p := range v.entries {
			if !yield(p) {
				return
			}
		}
	}
}

// StartTime returns the front entry's start, or the zero time.
func (v View) StartTime() time.Time {
	if v.Empty() {
		return time.Time{}
	}
	return v.Front().RecordStartTime
}

// EndTime returns the back entry's end, or the zero time.
func (v View) EndTime() time.Time {
	if v.Empty() {
		return time.Time{}
	}
	return v.Back().RecordEndTime
}

// Window returns [StartTime, EndTime).
func (v View) Window() timewindow.Window {
	return timewindow.Window{Start: v.StartTime(), End: v.EndTime()}
}

// Length returns the span of the view in seconds.
func (v View) Length() float64 {
	return v.Window().Length()
}

// Package sinks provides report sinks for the QC engine: in-process
// adapters for tests and embedding, and adapters for external stores and
// message buses.
package sinks

import (
	"context"
	"io"
	"sync"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
	"github.com/seisqc/seisqc/pkg/qc"
)

// Sink is a report sink that holds resources.
type Sink interface {
	qc.Sink
	io.Closer
}

// Func adapts a function to a Sink.
type Func func(ctx context.Context, reports []qc.Report) error

// Name returns "func".
func (f Func) Name() string { return "func" }

// Send calls f.
func (f Func) Send(ctx context.Context, reports []qc.Report) error { return f(ctx, reports) }

// Close does nothing.
func (f Func) Close() error { return nil }

// Channel delivers report batches to a channel. Send blocks until the
// batch is received or ctx is done.
type Channel chan []qc.Report

// Name returns "channel".
func (c Channel) Name() string { return "channel" }

// Send delivers reports.
func (c Channel) Send(ctx context.Context, reports []qc.Report) error {
	select {
	case c <- reports:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close does nothing; the owner of the channel closes it.
func (c Channel) Close() error { return nil }

// Fanout sends every batch to all of its sinks in order. A failing sink
// does not stop delivery to the others.
type Fanout struct {
	mu    sync.Mutex
	sinks []Sink
}

// NewFanout creates a fanout over sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add appends a sink.
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}

// Name returns "fanout".
func (f *Fanout) Name() string { return "fanout" }

// Send delivers reports to every sink. Each sink gets its own copy of the
// slice. The returned error joins the failures of individual sinks.
func (f *Fanout) Send(ctx context.Context, reports []qc.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs qcerrors.MultiError
	for i, s := range f.sinks {
		batch := reports
		if i < len(f.sinks)-1 {
			batch = append([]qc.Report(nil), reports...)
		}
		if err := s.Send(ctx, batch); err != nil {
			errs.Add(qcerrors.SinkFailure(s.Name(), err))
		}
	}
	return errs.Combined()
}

// Close closes all sinks.
func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs qcerrors.MultiError
	for _, s := range f.sinks {
		errs.Add(s.Close())
	}
	return errs.Combined()
}

package sinks

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
	"github.com/seisqc/seisqc/pkg/qc"
	"github.com/seisqc/seisqc/pkg/resilience"
)

// ErrCircuitOpen is returned by a guarded sink while its circuit is open.
var ErrCircuitOpen = qcerrors.New(qcerrors.CodeSinkFailure, "circuit open, batch dropped")

// Guarded skips a failing sink instead of waiting on it every tick.
type Guarded struct {
	sink    Sink
	breaker *resilience.CircuitBreaker
	dropped atomic.Int64
}

// NewGuarded wraps s with cb. Trips and resets are logged.
func NewGuarded(s Sink, cb *resilience.CircuitBreaker, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := s.Name()
	cb.OnTrip = func(failures int) {
		logger.Warn("sink disabled after consecutive failures",
			zap.String("sink", name),
			zap.Int("failures", failures),
		)
	}
	cb.OnReset = func() {
		logger.Info("sink recovered", zap.String("sink", name))
	}
	return &Guarded{sink: s, breaker: cb}
}

// Name returns the wrapped sink's name.
func (g *Guarded) Name() string { return g.sink.Name() }

// Send forwards reports unless the circuit is open.
func (g *Guarded) Send(ctx context.Context, reports []qc.Report) error {
	if !g.breaker.Allow() {
		g.dropped.Add(int64(len(reports)))
		return ErrCircuitOpen
	}
	err := g.sink.Send(ctx, reports)
	g.breaker.End(err == nil)
	return err
}

// Dropped returns the number of reports skipped while open.
func (g *Guarded) Dropped() int64 { return g.dropped.Load() }

// State returns the breaker state.
func (g *Guarded) State() resilience.CircuitState { return g.breaker.State() }

// Close closes the wrapped sink.
func (g *Guarded) Close() error { return g.sink.Close() }

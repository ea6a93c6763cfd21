// Package lifecycle handles signals, health reporting and the ordered
// release of resources on shutdown.
package lifecycle

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
)

// ShutdownManager closes registered resources once, in reverse order of
// registration, and reports health until shutdown starts.
type ShutdownManager struct {
	mu sync.Mutex

	timeout  time.Duration
	logger   *zap.Logger
	healthy  bool
	draining bool

	closers []namedCloser
	done    chan struct{}
}

type namedCloser struct {
	name string
	c    io.Closer
}

// ShutdownConfig configures the shutdown manager.
type ShutdownConfig struct {
	// Timeout bounds the whole close sequence.
	Timeout time.Duration
	Logger  *zap.Logger
}

// DefaultShutdownConfig returns sensible defaults.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{Timeout: 30 * time.Second}
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ShutdownManager{
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		healthy: true,
		done:    make(chan struct{}),
	}
}

// Register adds a resource to close during shutdown. Resources are closed
// last-registered first, so register sinks before the components that
// write into them.
func (m *ShutdownManager) Register(name string, c io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, namedCloser{name: name, c: c})
}

// IsHealthy returns whether the service is healthy.
func (m *ShutdownManager) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy && !m.draining
}

// SetHealthy sets the health reported by HealthHandler.
func (m *ShutdownManager) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// Shutdown closes every registered resource. Later calls return nil
// without doing anything.
func (m *ShutdownManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return nil
	}
	m.draining = true
	closers := append([]namedCloser(nil), m.closers...)
	m.mu.Unlock()
	defer close(m.done)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var errs qcerrors.MultiError
	for i := len(closers) - 1; i >= 0; i-- {
		nc := closers[i]
		result := make(chan error, 1)
		go func() { result <- nc.c.Close() }()

		select {
		case err := <-result:
			if err != nil {
				m.logger.Warn("close failed", zap.String("resource", nc.name), zap.Error(err))
				errs.Add(err)
			}
		case <-ctx.Done():
			m.logger.Error("shutdown timed out", zap.String("resource", nc.name))
			errs.Add(ctx.Err())
			return errs.Combined()
		}
	}
	m.logger.Info("shutdown complete", zap.Int("resources", len(closers)))
	return errs.Combined()
}

// Wait blocks until shutdown is complete.
func (m *ShutdownManager) Wait() {
	<-m.done
}

// HealthHandler returns 200 while healthy and 503 once shutdown started.
func (m *ShutdownManager) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.IsHealthy() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining\n"))
	})
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestShutdownClosesInReverseOrder(t *testing.T) {
	m := NewShutdownManager(DefaultShutdownConfig())

	var order []string
	m.Register("sinks", closerFunc(func() error { order = append(order, "sinks"); return nil }))
	m.Register("engine", closerFunc(func() error { order = append(order, "engine"); return errors.New("boom") }))

	err := m.Shutdown(context.Background())
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected close error, got %v", err)
	}
	if len(order) != 2 || order[0] != "engine" || order[1] != "sinks" {
		t.Errorf("unexpected close order %v", order)
	}

	if err := m.Shutdown(context.Background()); err != nil {
		t.Errorf("second shutdown should be a no-op, got %v", err)
	}
	m.Wait()
}

func TestShutdownTimeout(t *testing.T) {
	m := NewShutdownManager(ShutdownConfig{Timeout: 20 * time.Millisecond})
	block := make(chan struct{})
	defer close(block)
	m.Register("stuck", closerFunc(func() error { <-block; return nil }))

	if err := m.Shutdown(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline, got %v", err)
	}
}

func TestHealthHandler(t *testing.T) {
	m := NewShutdownManager(DefaultShutdownConfig())
	h := m.HealthHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after shutdown, got %d", rec.Code)
	}
}

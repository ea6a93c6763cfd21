// Package resilience provides a circuit breaker for calls to external
// services such as report sinks.
package resilience

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Rejecting calls
	CircuitHalfOpen                     // One trial call allowed
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker opens after a run of consecutive failures and rejects
// calls until the cooldown has passed. The first call after the cooldown
// is a trial: success closes the circuit, failure opens it again.
type CircuitBreaker struct {
	mu sync.Mutex

	// Configuration
	maxFailures    int
	cooldownPeriod time.Duration
	now            func() time.Time

	// State
	state    CircuitState
	failures int
	tripTime time.Time
	trial    bool

	// Callbacks
	OnTrip  func(failures int)
	OnReset func()
}

// NewCircuitBreaker creates a circuit breaker with sensible defaults.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:    5,
		cooldownPeriod: 30 * time.Second,
		now:            time.Now,
		state:          CircuitClosed,
	}
}

// WithMaxFailures sets the consecutive failures that open the circuit.
func (cb *CircuitBreaker) WithMaxFailures(n int) *CircuitBreaker {
	if n > 0 {
		cb.maxFailures = n
	}
	return cb
}

// WithCooldown sets the cooldown period after tripping.
func (cb *CircuitBreaker) WithCooldown(d time.Duration) *CircuitBreaker {
	cb.cooldownPeriod = d
	return cb
}

// WithClock replaces the time source.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// Allow reports whether a call may proceed. Every allowed call must be
// followed by End.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.tripTime) < cb.cooldownPeriod {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.trial = true
		return true

	case CircuitHalfOpen:
		// Only one trial call at a time.
		if cb.trial {
			return false
		}
		cb.trial = true
		return true
	}
	return true
}

// End records the outcome of an allowed call.
func (cb *CircuitBreaker) End(success bool) {
	cb.mu.Lock()

	if success {
		wasOpen := cb.state != CircuitClosed
		cb.state = CircuitClosed
		cb.failures = 0
		cb.trial = false
		onReset := cb.OnReset
		cb.mu.Unlock()
		if wasOpen && onReset != nil {
			onReset()
		}
		return
	}

	cb.failures++
	cb.trial = false
	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = CircuitOpen
		cb.tripTime = cb.now()
		failures, onTrip := cb.failures, cb.OnTrip
		cb.mu.Unlock()
		if onTrip != nil {
			onTrip(failures)
		}
		return
	}
	cb.mu.Unlock()
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

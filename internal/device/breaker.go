// SPDX-License-Identifier: MIT

package device

import (
	"sync"
	"time"

	"github.com/oakgate/oakgate/internal/metrics"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // normal operation, attempts allowed
	BreakerOpen                         // attempts blocked until the reset timeout
	BreakerHalfOpen                     // probing whether the device recovered
)

// CircuitBreaker guards dial and handshake attempts so a dead or flapping
// device endpoint does not get hammered in a tight reconnect loop.
type CircuitBreaker struct {
	mu               sync.RWMutex
	state            BreakerState
	failures         int
	failureThreshold int
	resetTimeout     time.Duration
	lastFailure      time.Time
}

// NewCircuitBreaker creates a breaker that opens after threshold consecutive
// failures and probes again after resetTimeout.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: threshold,
		resetTimeout:     resetTimeout,
	}
	metrics.SetCircuitBreakerState("device", breakerLabel(cb.state))
	return cb
}

// Execute runs fn if the circuit is closed or half-open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	if err := fn(); err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	prevState := cb.state

	if cb.state == BreakerClosed {
		cb.mu.Unlock()
		return true
	}

	if cb.state == BreakerOpen {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = BreakerHalfOpen
			state := cb.state
			cb.mu.Unlock()
			if state != prevState {
				metrics.SetCircuitBreakerState("device", breakerLabel(state))
			}
			return true
		}
		cb.mu.Unlock()
		return false
	}

	// Half-open: let the probe through. Concurrency is bounded by the
	// supervisor, which runs one attempt at a time.
	cb.mu.Unlock()
	return true
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	prevState := cb.state

	cb.failures++
	cb.lastFailure = time.Now()

	reason := "failure_threshold"
	if cb.state == BreakerHalfOpen {
		reason = "half_open_probe"
	}
	if cb.state == BreakerHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = BreakerOpen
	}
	state := cb.state
	cb.mu.Unlock()

	if state != prevState {
		metrics.SetCircuitBreakerState("device", breakerLabel(state))
		if state == BreakerOpen {
			metrics.RecordCircuitBreakerTrip("device", reason)
		}
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	prevState := cb.state

	cb.failures = 0
	cb.state = BreakerClosed
	state := cb.state
	cb.mu.Unlock()

	if state != prevState {
		metrics.SetCircuitBreakerState("device", breakerLabel(state))
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func breakerLabel(state BreakerState) string {
	switch state {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

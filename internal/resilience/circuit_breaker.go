// SPDX-License-Identifier: MIT

// Package resilience provides a named circuit breaker guarding downstream
// endpoints. The decision policy is a sliding window over the last N call
// outcomes, independent of total call count.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/ticketd/ticketd/internal/metrics"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// touching the downstream.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Defaults per the notification egress contract.
const (
	DefaultWindowSize       = 10
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 30 * time.Second
)

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CircuitBreaker is a failure-window state machine. CLOSED records each
// outcome in a window of the last windowSize results; a full window holding
// at least threshold failures opens the circuit. OPEN rejects calls for
// openTimeout, then admits exactly one trial in HALF_OPEN.
type CircuitBreaker struct {
	mu          sync.Mutex
	name        string
	state       State
	window      []bool // outcome ring, true = failure
	windowSize  int
	threshold   int
	openTimeout time.Duration
	openedAt    time.Time
	probing     bool // a half-open trial is in flight
	clock       clock
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock injects a time source for tests.
func WithClock(c clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithWindow overrides window size and failure threshold.
func WithWindow(size, threshold int) Option {
	return func(cb *CircuitBreaker) {
		if size > 0 {
			cb.windowSize = size
		}
		if threshold > 0 {
			cb.threshold = threshold
		}
	}
}

// WithOpenTimeout overrides the open-state cool-down.
func WithOpenTimeout(d time.Duration) Option {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.openTimeout = d
		}
	}
}

// New creates a circuit breaker with the given name.
func New(name string, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:        name,
		state:       StateClosed,
		windowSize:  DefaultWindowSize,
		threshold:   DefaultFailureThreshold,
		openTimeout: DefaultOpenTimeout,
		clock:       realClock{},
	}
	for _, opt := range opts {
		opt(cb)
	}
	metrics.SetCircuitBreakerState(cb.name, string(cb.state))
	return cb
}

// Allow asks the breaker to admit a call. It returns ErrCircuitOpen when the
// call must fail fast. An admitted call must be followed by RecordSuccess or
// RecordFailure.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) >= cb.openTimeout {
			cb.transitionTo(StateHalfOpen)
			cb.probing = true
			return nil
		}
		return ErrCircuitOpen
	default: // StateHalfOpen
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	}
}

// RecordSuccess reports a successful call outcome.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.probing = false
		cb.window = nil
		cb.transitionTo(StateClosed)
	case StateClosed:
		cb.record(false)
		cb.maybeTrip()
	}
}

// RecordFailure reports a failed call outcome: any timeout, connection
// error, or HTTP status >= 500. Rate-limit responses are not failures.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.probing = false
		metrics.RecordCircuitBreakerTrip(cb.name, "half_open_failure")
		cb.transitionTo(StateOpen)
	case StateClosed:
		cb.record(true)
		cb.maybeTrip()
	}
}

// maybeTrip opens the circuit when the window is full and holds at least
// threshold failures. Caller must hold mu.
func (cb *CircuitBreaker) maybeTrip() {
	if len(cb.window) == cb.windowSize && cb.failures() >= cb.threshold {
		metrics.RecordCircuitBreakerTrip(cb.name, "window_threshold")
		cb.transitionTo(StateOpen)
	}
}

// Execute runs fn under the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// record appends an outcome to the window. Caller must hold mu.
func (cb *CircuitBreaker) record(failure bool) {
	cb.window = append(cb.window, failure)
	if len(cb.window) > cb.windowSize {
		cb.window = cb.window[len(cb.window)-cb.windowSize:]
	}
}

// failures counts failures in the window. Caller must hold mu.
func (cb *CircuitBreaker) failures() int {
	n := 0
	for _, failed := range cb.window {
		if failed {
			n++
		}
	}
	return n
}

// transitionTo changes state and updates metrics. Caller must hold mu.
func (cb *CircuitBreaker) transitionTo(newState State) {
	if cb.state == newState {
		return
	}
	cb.state = newState
	if newState == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	metrics.SetCircuitBreakerState(cb.name, string(newState))
}

// Reset forces the breaker back to CLOSED and clears the window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.window = nil
	cb.probing = false
	cb.transitionTo(StateClosed)
}

// Status is the observable breaker state.
type Status struct {
	Name             string  `json:"name"`
	State            State   `json:"state"`
	FailureCount     int     `json:"failure_count"`
	WindowSize       int     `json:"window_size"`
	TimeSinceOpenSec float64 `json:"time_since_open_seconds,omitempty"`
}

// Status returns a snapshot of the breaker.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := Status{
		Name:         cb.name,
		State:        cb.state,
		FailureCount: cb.failures(),
		WindowSize:   cb.windowSize,
	}
	if cb.state == StateOpen {
		st.TimeSinceOpenSec = cb.clock.Now().Sub(cb.openedAt).Seconds()
	}
	return st
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

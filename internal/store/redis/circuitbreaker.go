package redis

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls. The
// publisher treats it as a degraded-mode marker, not a publish failure.
var ErrCircuitOpen = errors.New("redis circuit open")

// State of the publish-path circuit breaker.
type State int

const (
	StateClosed   State = iota // Redis healthy, calls pass through
	StateOpen                  // tripped, calls rejected until the reset timeout
	StateHalfOpen              // timeout elapsed, probing with one call
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker keeps a down or flapping Redis from stalling the bar
// evaluation loop. Every publish and state checkpoint runs through
// Execute; after maxFailures consecutive errors the breaker opens and
// calls fail fast with ErrCircuitOpen instead of waiting out connection
// timeouts on every bar. Once resetTimeout has passed, a single probe is
// let through: success closes the breaker, failure re-opens it.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       State
	consecFails int
	lastFailAt  time.Time

	maxFailures  int
	resetTimeout time.Duration

	// OnStateChange fires on every transition, under the breaker lock.
	OnStateChange func(from, to State)
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
	}
}

// Execute runs fn unless the breaker is open, and folds fn's result into
// the breaker state.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if time.Since(cb.lastFailAt) <= cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.consecFails++
		cb.lastFailAt = time.Now()
		if cb.state == StateHalfOpen || cb.consecFails >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return err
	}
	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.consecFails = 0
	return nil
}

// CurrentState returns the breaker's current state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if to == StateClosed {
		cb.consecFails = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}

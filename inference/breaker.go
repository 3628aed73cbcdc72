package inference

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // Normal operation, calls pass through.
	BreakerOpen                         // Calls rejected immediately.
	BreakerHalfOpen                     // One probe call allowed to test recovery.
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned when the breaker rejects a call without
// contacting the server.
type ErrCircuitOpen struct {
	Endpoint string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("inference: circuit open: %s", e.Endpoint)
}

// breaker trips open after threshold consecutive failures and lets a single
// probe through once resetTimeout has elapsed.
type breaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	threshold    int
	resetTimeout time.Duration
	lastFailure  time.Time
	now          func() time.Time
}

func newBreaker(threshold int, reset time.Duration) *breaker {
	return &breaker{threshold: threshold, resetTimeout: reset, now: time.Now}
}

func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransition()
	return b.state
}

func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransition()
	return b.state != BreakerOpen
}

func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}

func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = b.now()
	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = BreakerOpen
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
	}
}

// maybeTransition moves an open breaker to half-open after the reset
// timeout. Must be called with mu held.
func (b *breaker) maybeTransition() {
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		b.state = BreakerHalfOpen
	}
}

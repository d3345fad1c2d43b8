// Package safety implements the clarification safety governor: a circuit
// breaker over consecutive failures and a per-conversation round cap. The
// two are deliberately independent state machines; "system is unhealthy" and
// "this conversation asked enough questions" carry different semantics.
package safety

import (
	"sync"
	"time"

	"clariond/internal/logging"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// Breaker suspends clarification after repeated failures and probes recovery
// after a cooldown window. Scoped to the handler instance and shared across
// concurrent requests; all transitions happen under one mutex.
type Breaker struct {
	mu             sync.Mutex
	maxFailures    int
	resetWindow    time.Duration
	consecutive    int
	state          State
	lastFailure    time.Time
	lastTransition time.Time
	now            func() time.Time
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker creates a closed breaker.
func NewBreaker(maxFailures int, resetWindow time.Duration, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		maxFailures: maxFailures,
		resetWindow: resetWindow,
		state:       StateClosed,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastTransition = b.now()
	return b
}

// Configure updates the trip threshold and reset window in place, preserving
// the current state and consecutive-failure counter so a config reload cannot
// mask an unhealthy system.
func (b *Breaker) Configure(maxFailures int, resetWindow time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxFailures = maxFailures
	b.resetWindow = resetWindow
}

// Allow reports whether a clarification may go ahead. While OPEN it returns
// false until the reset window has elapsed since the last failure, at which
// point the breaker moves to HALF_OPEN and lets one probe through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.resetWindow {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordFailure counts a consecutive failure. Trips CLOSED->OPEN at
// max_failures; a failure during HALF_OPEN re-opens and restarts the timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive++
	b.lastFailure = b.now()

	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateClosed:
		if b.consecutive >= b.maxFailures {
			b.transition(StateOpen)
		}
	}
}

// RecordSuccess resets the consecutive-failure counter. A success during
// HALF_OPEN closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive = 0
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
}

// Reset is the operator override: clears the counter and forces CLOSED.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
	logging.Safety("Circuit breaker reset by operator")
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current consecutive-failure count.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}

// transition must be called with the mutex held.
func (b *Breaker) transition(to State) {
	logging.Safety("Circuit breaker %s -> %s (consecutive failures: %d)", b.state, to, b.consecutive)
	b.state = to
	b.lastTransition = b.now()
}

// ExceededRoundCap reports whether a conversation has used up its
// clarification rounds. Independent of breaker state by design.
func ExceededRoundCap(round, maxRounds int) bool {
	return maxRounds >= 0 && round >= maxRounds
}

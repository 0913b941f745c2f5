package mesh

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker guards pull sessions against a single unreachable or
// misbehaving peer for one stream. The engine keeps one instance per
// streamID (see Engine.breakerFor) rather than the one-per-service
// breaker the teacher's mesh package used, since a peer can be healthy
// for most of its streams and only stuck on one (a corrupt segment, an
// invariant violation that keeps rejecting the same pull).
type CircuitBreaker struct {
	mu           sync.RWMutex
	state        State
	failures     int
	threshold    int
	resetTimeout time.Duration
	lastFailure  time.Time

	// Label identifies which stream (or peer) this breaker guards, for
	// callers that want to attribute a trip/reset to something more
	// specific than "the breaker."
	Label string

	// halfOpenProbing is true while one probe request is in flight.
	// Without it, every caller sees StateHalfOpen as "allow" and a
	// burst of concurrent pull attempts against a still-recovering peer
	// reopens the breaker before a single probe has even returned.
	halfOpenProbing bool
}

// NewCircuitBreaker creates a breaker scoped to label (typically a
// stream ID).
func NewCircuitBreaker(label string, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		Label:        label,
		state:        StateClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
	}
}

// Allow reports whether a new attempt should proceed. In StateHalfOpen
// it admits exactly one in-flight probe at a time; concurrent callers
// are turned away until that probe calls Success or Failure.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.RLock()
	state := cb.state
	lastFailure := cb.lastFailure
	cb.mu.RUnlock()

	if state == StateClosed {
		return true
	}

	if state == StateOpen {
		if time.Since(lastFailure) > cb.resetTimeout {
			cb.mu.Lock()
			// Double check
			if cb.state == StateOpen {
				cb.state = StateHalfOpen
				cb.failures = 0
				cb.halfOpenProbing = true
				cb.mu.Unlock()
				return true
			}
			cb.mu.Unlock()
			return false
		}
		return false
	}

	// StateHalfOpen: admit one probe, turn away the rest until it settles.
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateHalfOpen || cb.halfOpenProbing {
		return false
	}
	cb.halfOpenProbing = true
	return true
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.failures = 0
		cb.halfOpenProbing = false
	} else if cb.state == StateClosed {
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.state == StateClosed && cb.failures >= cb.threshold {
		cb.state = StateOpen
	} else if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.halfOpenProbing = false
	}
}

// BreakerStats is a point-in-time snapshot of one breaker, for
// diagnostics (e.g. an admin endpoint listing which streams currently
// have a peer tripped).
type BreakerStats struct {
	Label    string
	State    State
	Failures int
}

// Stats returns a snapshot of the breaker's current state.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return BreakerStats{Label: cb.Label, State: cb.state, Failures: cb.failures}
}

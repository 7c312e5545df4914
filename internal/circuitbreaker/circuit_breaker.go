// Package circuitbreaker guards the upstream Confluence instance. When
// consecutive fetches keep failing with transport-level errors the breaker
// opens and the proxy fails fast instead of stacking requests onto a dead
// upstream.
//
// State transitions:
//
//	Closed → Open       when consecutive failures ≥ failureThreshold
//	Open   → HalfOpen   after timeout elapses
//	HalfOpen → Closed   when consecutive successes ≥ successThreshold
//	HalfOpen → Open     on any failure
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the breaker's current state.
type State int

const (
	// StateClosed — normal operation; fetches pass through.
	StateClosed State = iota
	// StateOpen — upstream is considered down; fetches are rejected
	// immediately.
	StateOpen
	// StateHalfOpen — the breaker is probing recovery.
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker tracks consecutive upstream failures for one origin.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	openUntil        time.Time
}

// New creates a Breaker with the given thresholds and open timeout.
// Defaults are applied for zero/negative values: failureThreshold=5,
// successThreshold=1, timeout=30s.
func New(failureThreshold, successThreshold int, timeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Breaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
	}
}

// State returns the current state, transitioning Open→HalfOpen if the
// timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolveState()
}

// resolveState must be called with b.mu held.
func (b *Breaker) resolveState() State {
	if b.state == StateOpen && time.Now().After(b.openUntil) {
		b.state = StateHalfOpen
		b.successCount = 0
	}
	return b.state
}

// Allow returns true if the fetch should proceed (Closed or HalfOpen),
// false if it should be rejected (Open).
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolveState() != StateOpen
}

// RecordSuccess notifies the breaker that a fetch received a definitive
// upstream answer.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// RecordFailure notifies the breaker that a fetch failed at the transport
// level.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.state = StateOpen
			b.openUntil = time.Now().Add(b.timeout)
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openUntil = time.Now().Add(b.timeout)
		b.successCount = 0
	}
}

package breaker

import (
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed allows requests to pass through.
	StateClosed State = iota
	// StateOpen rejects all requests without touching the dependency.
	StateOpen
	// StateHalfOpen admits a bounded number of probe requests to test
	// whether the dependency has recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
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

// Breaker guards a failing dependency: after FailureThreshold consecutive
// failures it rejects calls immediately for RecoveryTimeout, then admits up
// to MaxProbes probe calls. Any probe success closes the circuit; any probe
// failure reopens it and restarts the cooldown clock.
//
// State is process-local by design; each process sizes and tracks its own
// breaker. Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration
	maxProbes        int

	state       State
	failures    int
	openedAt    time.Time
	probesInUse int
}

// New creates a breaker. Non-positive arguments fall back to defaults:
// 5 consecutive failures to open, one half-open probe, 30s cooldown.
func New(failureThreshold, maxProbes int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if maxProbes <= 0 {
		maxProbes = 1
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}

	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		maxProbes:        maxProbes,
		state:            StateClosed,
	}
}

// Allow reports whether a call may proceed. While open it returns false
// with no network attempt; once the cooldown elapses it transitions to
// half-open and admits up to MaxProbes calls.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(b.openedAt) > b.recoveryTimeout {
			b.state = StateHalfOpen
			b.probesInUse = 1
			return true
		}
		return false

	case StateHalfOpen:
		if b.probesInUse >= b.maxProbes {
			return false
		}
		b.probesInUse++
		return true

	default:
		return false
	}
}

// RecordSuccess records a successful call. A single probe success is
// enough to close the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0

	case StateHalfOpen:
		b.state = StateClosed
		b.failures = 0
		b.probesInUse = 0
	}
}

// RecordFailure records a failed call. In the closed state it counts
// toward the threshold; in half-open it reopens the circuit and restarts
// the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = StateOpen
			b.openedAt = time.Now()
		}

	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = time.Now()
		b.failures = b.failureThreshold
		b.probesInUse = 0
	}
}

// State returns the current state, accounting for the automatic
// open-to-half-open transition Allow would perform.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.openedAt) > b.recoveryTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset returns the breaker to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probesInUse = 0
	b.openedAt = time.Time{}
}

// Stats provides visibility into breaker state for monitoring.
type Stats struct {
	State    string
	Failures int
	OpenedAt time.Time
}

// Stats returns the current statistics of the breaker.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		State:    b.state.String(),
		Failures: b.failures,
		OpenedAt: b.openedAt,
	}
}

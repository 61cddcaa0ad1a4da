// Package breaker provides a keyed circuit-breaker registry for outbound
// dependencies.
//
// Each breaker is a CLOSED -> OPEN -> HALF_OPEN state machine: consecutive
// failures open the circuit, calls are rejected while open, and after the
// reset timeout a single trial call decides whether to close it again. The
// registry is an injected object so tests and independent callers can hold
// isolated breaker sets.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the circuit rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// ErrUnknownBreaker is returned when resetting a breaker that was never
// registered.
var ErrUnknownBreaker = errors.New("unknown circuit breaker")

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
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
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler for JSON status payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = StateClosed
	case "open":
		*s = StateOpen
	case "half_open":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("unknown breaker state %q", text)
	}
	return nil
}

// Status is a point-in-time snapshot of one breaker.
type Status struct {
	State            State         `json:"state"`
	FailureCount     int           `json:"failure_count"`
	FailureThreshold int           `json:"failure_threshold"`
	ResetTimeout     time.Duration `json:"reset_timeout"`
	LastFailure      time.Time     `json:"last_failure,omitzero"`
	LastSuccess      time.Time     `json:"last_success,omitzero"`
}

// Breaker guards a single named dependency. All transitions happen under
// the breaker's lock; it is safe for concurrent callers.
type Breaker struct {
	name      string
	threshold int
	timeout   time.Duration
	clock     func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	trialActive bool
	lastFailure time.Time
	lastSuccess time.Time
}

func newBreaker(name string, threshold int, timeout time.Duration, clock func() time.Time) *Breaker {
	return &Breaker{
		name:      name,
		threshold: threshold,
		timeout:   timeout,
		clock:     clock,
		state:     StateClosed,
	}
}

// Allow reports whether a call may proceed. While OPEN it returns ErrOpen
// until the reset timeout elapses, at which point the breaker moves to
// HALF_OPEN and admits exactly one trial call; further calls are rejected
// until that trial reports success or failure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.clock().Sub(b.openedAt) < b.timeout {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.trialActive = true
		return nil
	case StateHalfOpen:
		if b.trialActive {
			return ErrOpen
		}
		b.trialActive = true
		return nil
	default:
		return ErrOpen
	}
}

// RecordSuccess reports a successful call. In HALF_OPEN one success closes
// the circuit and clears the failure count. A late success report from a
// call admitted before the circuit opened clears the count but does not
// close it; OPEN only exits through the reset timeout.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSuccess = b.clock()
	b.failures = 0
	if b.state == StateOpen {
		return
	}
	b.trialActive = false
	b.state = StateClosed
}

// RecordFailure reports a failed call. Reaching the failure threshold in
// CLOSED opens the circuit; any failure in HALF_OPEN reopens it and
// restarts the timeout clock.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	b.lastFailure = now

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = now
		}
	case StateHalfOpen:
		b.trialActive = false
		b.failures++
		b.state = StateOpen
		b.openedAt = now
	case StateOpen:
		// Late failure report from a call admitted before opening.
		b.failures++
	}
}

// Status returns a snapshot of the breaker.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Status{
		State:            b.state,
		FailureCount:     b.failures,
		FailureThreshold: b.threshold,
		ResetTimeout:     b.timeout,
		LastFailure:      b.lastFailure,
		LastSuccess:      b.lastSuccess,
	}
}

// reset forces the breaker back to CLOSED with a clean failure count.
func (b *Breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.trialActive = false
}

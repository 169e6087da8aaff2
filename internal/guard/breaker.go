package guard

import (
	"time"
)

// State is the circuit position for one backend.
type State int

const (
	// StateClosed passes requests through and counts failures
	StateClosed State = iota

	// StateOpen short-circuits every request until the recovery timeout
	StateOpen

	// StateHalfOpen admits a bounded number of trial requests
	StateHalfOpen
)

// String returns the state name used in logs and wire payloads.
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

// MarshalJSON encodes the state as its string name.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// CircuitState is a point-in-time read of one backend's circuit.
type CircuitState struct {
	State               State
	ConsecutiveFailures int
	OpenedAt            time.Time
	HalfOpenCalls       int
}

// breaker holds one backend's circuit. All access happens under the
// owning entry's lock; the breaker itself has no locking.
type breaker struct {
	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenCalls       int
}

// moves OPEN to HALF_OPEN once the recovery timeout has elapsed; reports
// whether a transition happened
func (b *breaker) maybeRecover(now time.Time, recoveryTimeout time.Duration) bool {
	if b.state != StateOpen {
		return false
	}

	if now.Sub(b.openedAt) < recoveryTimeout {
		return false
	}

	b.state = StateHalfOpen
	b.halfOpenCalls = 0

	return true
}

// remaining wait before an open circuit becomes half-open
func (b *breaker) retryAfter(now time.Time, recoveryTimeout time.Duration) time.Duration {
	wait := recoveryTimeout - now.Sub(b.openedAt)
	if wait < 0 {
		wait = 0
	}

	return wait
}

// records a successful dispatch; reports whether the circuit closed
func (b *breaker) onSuccess() bool {
	b.consecutiveFailures = 0

	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.halfOpenCalls = 0
		b.openedAt = time.Time{}

		return true
	}

	return false
}

// records a failed dispatch; reports whether the circuit opened
func (b *breaker) onFailure(now time.Time, failureThreshold int) bool {
	b.consecutiveFailures++

	switch b.state {
	case StateHalfOpen:
		// a trial failure reopens immediately and restarts the clock
		b.state = StateOpen
		b.openedAt = now
		b.halfOpenCalls = 0

		return true

	case StateClosed:
		if b.consecutiveFailures >= failureThreshold {
			b.state = StateOpen
			b.openedAt = now

			return true
		}
	}

	return false
}

// resets the circuit to closed with zeroed counters
func (b *breaker) reset() {
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.openedAt = time.Time{}
	b.halfOpenCalls = 0
}

func (b *breaker) snapshot() CircuitState {
	return CircuitState{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		OpenedAt:            b.openedAt,
		HalfOpenCalls:       b.halfOpenCalls,
	}
}

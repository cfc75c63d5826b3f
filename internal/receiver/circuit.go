package receiver

import (
	"sync"
	"time"
)

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// circuitBreaker guards outbound calls to the store. After threshold
// consecutive failures the circuit opens; once the cooldown elapses a
// single probe is let through (half-open). A successful probe closes
// the circuit, a failed one reopens it.
type circuitBreaker struct {
	mu        sync.Mutex
	state     circuitState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	probeAt   time.Time
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// AllowRequest reports whether a call may proceed, transitioning
// open -> half-open when the cooldown has elapsed. In half-open only
// one probe is admitted per cooldown window, so a probe that never
// reports back cannot wedge the circuit.
func (cb *circuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitOpen:
		if time.Since(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.state = circuitHalfOpen
		cb.probeAt = time.Now()
		return true
	case circuitHalfOpen:
		if time.Since(cb.probeAt) < cb.cooldown {
			return false
		}
		cb.probeAt = time.Now()
		return true
	default:
		return true
	}
}

func (cb *circuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = circuitClosed
}

func (cb *circuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitHalfOpen {
		cb.state = circuitOpen
		cb.openedAt = time.Now()
		return
	}

	cb.failures++
	if cb.failures >= cb.threshold {
		cb.state = circuitOpen
		cb.openedAt = time.Now()
	}
}

func (cb *circuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// isDegraded reports whether the circuit is anything but closed.
func (cb *circuitBreaker) isDegraded() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state != circuitClosed
}

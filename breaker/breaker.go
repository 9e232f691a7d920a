// Package breaker guards calls to the networked cache backend.
//
// The façade reports every Redis call outcome to a Breaker. After a run of
// consecutive failures the breaker opens and the façade answers from the
// in-process store without touching Redis; after OpenTimeout a limited number
// of probe calls are let through again.
//
// States:
//   - Closed: calls reach the backend; consecutive failures are counted.
//   - Open: calls skip the backend until OpenTimeout has elapsed.
//   - HalfOpen: up to HalfOpenMaxSuccess probes are allowed; if they all
//     succeed the breaker closes, any failure reopens it.
//
// The breaker never changes the connection mode. A connection that is
// declared lost is handled by package conn.
package breaker

import (
	"sync"
	"time"
)

// State represents the current circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive backend failures in
	// Closed state before the breaker opens. Zero selects 5.
	FailureThreshold int

	// OpenTimeout is how long the breaker stays Open before letting probes
	// through. Zero selects 10 seconds.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is the number of consecutive probe successes needed
	// to close the breaker again. Zero selects 1.
	HalfOpenMaxSuccess int

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker lock released.
	OnStateChange func(from, to State)
}

// Breaker is a minimal circuit breaker. All methods are safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state     State
	failures  int // consecutive failures in Closed
	successes int // consecutive successes in HalfOpen
	openedAt  time.Time
	nowFunc   func() time.Time // for testing; defaults to time.Now
}

// New creates a Breaker with the given configuration.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.HalfOpenMaxSuccess <= 0 {
		cfg.HalfOpenMaxSuccess = 1
	}
	return &Breaker{
		cfg:     cfg,
		state:   Closed,
		nowFunc: time.Now,
	}
}

// State returns the current state of the breaker. In Open state it may
// auto-transition to HalfOpen if the timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	from := b.state
	b.checkOpenTimeout()
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return to
}

// Allow reports whether a backend call may be attempted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	from := b.state
	b.checkOpenTimeout()
	to := b.state

	var ok bool
	switch b.state {
	case Closed:
		ok = true
	case HalfOpen:
		ok = b.successes < b.cfg.HalfOpenMaxSuccess
	default: // Open
		ok = false
	}
	b.mu.Unlock()
	b.notify(from, to)
	return ok
}

// OnSuccess records a successful backend call.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenMaxSuccess {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// OnFailure records a failed backend call.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.toOpen()
		}
	case HalfOpen:
		b.toOpen()
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// checkOpenTimeout transitions from Open to HalfOpen when the timeout has
// elapsed. Must be called with b.mu held.
func (b *Breaker) checkOpenTimeout() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.state = HalfOpen
		b.successes = 0
	}
}

func (b *Breaker) toOpen() {
	b.state = Open
	b.openedAt = b.now()
	b.successes = 0
	b.failures = 0
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

func (b *Breaker) now() time.Time {
	if b.nowFunc != nil {
		return b.nowFunc()
	}
	return time.Now()
}

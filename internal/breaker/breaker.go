// Package breaker implements a three-state circuit breaker for pacing
// retries after repeated failures of some external operation. The
// event log's read loop is the counter bridge's only user; it sets a
// failure threshold of one, so every read error trips the breaker and
// costs the full backoff interval (see internal/bridge/backoff.go).
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State is one of the breaker's three states.
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow while the breaker is open.
var ErrOpen = errors.New("breaker is open")

// Config controls when the breaker trips and how long it stays open.
type Config struct {
	// FailureThreshold is the number of consecutive failures, while
	// Closed, that trips the breaker to Open.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes, while
	// HalfOpen, required to close the breaker again.
	SuccessThreshold int
	// ResetTimeout is how long the breaker stays Open before Allow
	// moves it to HalfOpen and lets calls through again.
	ResetTimeout time.Duration
}

// Breaker tracks consecutive failures/successes of some operation and
// reports whether the caller should attempt it right now.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	resetTimeout     time.Duration
	openedAt         time.Time
	now              func() time.Time
}

// New returns a Breaker starting Closed.
func New(cfg Config) *Breaker {
	return &Breaker{
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		resetTimeout:     cfg.ResetTimeout,
		now:              time.Now,
	}
}

// Allow reports whether the caller should proceed. It also performs
// the Open-to-HalfOpen transition once ResetTimeout has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) >= b.resetTimeout {
			b.state = HalfOpen
			b.successes = 0
			return nil
		}
		return ErrOpen
	default:
		return nil
	}
}

// RecordSuccess registers a successful attempt.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	}
}

// RecordFailure registers a failed attempt, tripping the breaker open
// if this pushes it past its threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = Open
			b.openedAt = b.now()
		}
	case HalfOpen:
		b.state = Open
		b.openedAt = b.now()
		b.successes = 0
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

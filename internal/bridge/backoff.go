package bridge

import (
	"time"

	"github.com/injest-ai/countero/internal/breaker"
)

// readBackoff paces the read loop's retry-after-error delay: every read
// failure waits the fixed interval before the next attempt. It wraps a
// breaker.Breaker with a one-failure threshold rather than a bare
// time.Sleep so the read loop's error path shares the same
// Open/HalfOpen/Closed accounting and State() introspection as any
// other breaker.Breaker consumer, but a single failure is already
// enough to trip it — there is no free retry.
type readBackoff struct {
	cb       *breaker.Breaker
	interval time.Duration
}

func newReadBackoff(interval time.Duration) *readBackoff {
	return &readBackoff{
		cb: breaker.New(breaker.Config{
			FailureThreshold: 1,
			SuccessThreshold: 1,
			ResetTimeout:     interval,
		}),
		interval: interval,
	}
}

// next records a read failure and returns how long the caller should
// wait before retrying: always the fixed interval, since the breaker
// trips open on the very first recorded failure.
func (b *readBackoff) next() time.Duration {
	b.cb.RecordFailure()
	if b.cb.State() == breaker.Open {
		return b.interval
	}
	return 0
}

// recordSuccess reports a successful read to the breaker. It clears the
// failure count only while the breaker is Closed; once a failure has
// tripped it Open it stays Open (the read loop never calls Allow), so
// this does not change later backoffs.
func (b *readBackoff) recordSuccess() {
	b.cb.RecordSuccess()
}

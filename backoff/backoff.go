package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n. Attempt 1
	// is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Constant waits the same interval between every retry, whatever the
// attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the wait on every attempt, starting from Initial
// and capped at Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial doubled attempt-1 times, capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ExponentialWithJitter draws each delay uniformly from zero up to the
// exponential ceiling, so a burst of jobs failing together spreads its
// retries instead of hammering the queue in lockstep.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration within the attempt's exponential ceiling.
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter needs no crypto rand
}

// DefaultStrategy returns the backoff used by the executor unless
// overridden: exponential with full jitter, 1s initial, 30s max.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(time.Second, 30*time.Second)
}

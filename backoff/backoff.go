// Package backoff provides the grace strategies the recovery sweep uses to
// widen a job's staleness window after each re-signal, so a worker gets
// progressively more quiet time before the next intervention. Strategies
// are stateless, deterministic, and safe for concurrent use; the sweeper
// relies on successive runs computing the same grace for the same attempt.
package backoff

import "time"

// Strategy computes the grace for attempt n (1-indexed). Attempt 1 is the
// first re-signal after the initial dispatch went quiet.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant is a fixed grace, the same for every attempt.
type Constant time.Duration

// NewConstant returns a strategy that always grants interval.
func NewConstant(interval time.Duration) Constant { return Constant(interval) }

func (c Constant) Delay(int) time.Duration { return time.Duration(c) }

// Exponential doubles the grace each attempt, from Initial up to Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential returns a doubling strategy capped at maxDelay. A zero
// cap means uncapped.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial doubled attempt-1 times, capped at Max. The
// doubling saturates at the cap rather than overflowing for absurd
// attempt numbers.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := e.Initial
	for i := 1; i < attempt; i++ {
		if e.Max > 0 && d >= e.Max {
			return e.Max
		}
		d *= 2
	}
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// DefaultStrategy is the sweep grace used when none is configured: 30s
// doubling to a 5m ceiling.
func DefaultStrategy() Strategy {
	return NewExponential(30*time.Second, 5*time.Minute)
}

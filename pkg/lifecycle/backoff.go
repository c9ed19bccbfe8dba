package lifecycle

import "time"

// backoff implements the bounded exponential restart delay: each failed
// run doubles the delay up to a ceiling, and a sufficiently long healthy
// run resets it.
type backoff struct {
	initial    time.Duration
	max        time.Duration
	resetAfter time.Duration

	current time.Duration
}

func newBackoff(initial, max, resetAfter time.Duration) *backoff {
	return &backoff{
		initial:    initial,
		max:        max,
		resetAfter: resetAfter,
	}
}

// next returns the delay to apply before the next restart and advances the
// schedule.
func (b *backoff) next() time.Duration {
	if b.current == 0 {
		b.current = b.initial
		return b.current
	}
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return b.current
}

// observeRun resets the schedule after a sustained healthy run. healthyFor
// is how long the instance stayed RUNNING before it terminated.
func (b *backoff) observeRun(healthyFor time.Duration) {
	if healthyFor >= b.resetAfter {
		b.current = 0
	}
}

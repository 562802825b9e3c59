package taskpoll

import "time"

const (
	// DefaultMaxAttempts is the attempt budget when the timeout is enabled.
	DefaultMaxAttempts = 30

	// DefaultBaseDelay is the per-attempt backoff increment.
	DefaultBaseDelay = 100 * time.Millisecond

	// DefaultMaxDelay caps the backoff delay.
	DefaultMaxDelay = time.Second
)

// Backoff returns the delay before the given 1-based attempt using the
// default schedule: min(attempt*100ms, 1s).
func Backoff(attempt int) time.Duration {
	return linearBackoff(attempt, DefaultBaseDelay, DefaultMaxDelay)
}

// linearBackoff grows by base per attempt and is capped at maxDelay.
// The schedule is deterministic; there is no jitter.
func linearBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// compare before multiplying so large attempt counts cannot overflow
	if time.Duration(attempt) > maxDelay/base {
		return maxDelay
	}
	return min(time.Duration(attempt)*base, maxDelay)
}

// ABOUTME: RetryPolicy and exponential backoff with optional jitter for handler retries.
package engine

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig controls delay timing between retry attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DelayForAttempt computes the delay for a 0-indexed attempt number:
// InitialDelay * Factor^attempt, capped at MaxDelay, optionally jittered
// to a random value in [0, delay].
func (b BackoffConfig) DelayForAttempt(attempt int) time.Duration {
	baseNanos := float64(b.InitialDelay.Nanoseconds()) * math.Pow(b.Factor, float64(attempt))
	maxNanos := float64(b.MaxDelay.Nanoseconds())
	delayNanos := math.Min(baseNanos, maxNanos)
	if b.Jitter {
		delayNanos = rand.Float64() * delayNanos
	}
	return time.Duration(int64(delayNanos))
}

// RetryPolicy controls how many times a node firing is retried on handler
// error. MaxAttempts of 1 means no retries.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffConfig
	ShouldRetry func(error) bool
}

// DefaultShouldRetry retries any non-nil error.
func DefaultShouldRetry(err error) bool { return err != nil }

// RetryPolicyStandard is the engine's default: 5 attempts, 200ms initial
// delay doubling each attempt up to 60s, with jitter.
func RetryPolicyStandard() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Backoff: BackoffConfig{
			InitialDelay: 200 * time.Millisecond,
			Factor:       2.0,
			MaxDelay:     60 * time.Second,
			Jitter:       true,
		},
		ShouldRetry: DefaultShouldRetry,
	}
}

// RetryPolicyNone disables retries entirely.
func RetryPolicyNone() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, ShouldRetry: DefaultShouldRetry}
}

// sleepWithContext blocks for d or until ctx is cancelled, whichever comes
// first.
func sleepWithContext(ctxDone <-chan struct{}, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctxDone:
	case <-timer.C:
	}
}

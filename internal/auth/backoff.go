package auth

import (
	"context"
	"time"
)

// BackoffConfig holds the progressive-delay parameters
type BackoffConfig struct {
	Base time.Duration // doubling scale; the first failure waits 2*Base
	Cap  time.Duration // upper bound on the delay
}

// Backoff computes the mandatory wait between login attempts as
// failures accumulate: base doubled per failure, capped.
type Backoff struct {
	config BackoffConfig
}

// NewBackoff creates a new Backoff
func NewBackoff(config BackoffConfig) *Backoff {
	return &Backoff{config: config}
}

// DelayFor returns the delay for the given failure count:
// min(2^failCount * base, cap). Zero failures means no delay.
func (b *Backoff) DelayFor(failCount int) time.Duration {
	if failCount <= 0 {
		return 0
	}

	delay := b.config.Base
	for i := 1; i < failCount; i++ {
		delay *= 2
		if delay >= b.config.Cap {
			return b.config.Cap
		}
	}
	delay *= 2 // 2^failCount, not 2^(failCount-1)
	if delay > b.config.Cap {
		return b.config.Cap
	}

	return delay
}

// Wait sleeps out the delay for the failure count, returning early if
// the context is cancelled.
func (b *Backoff) Wait(ctx context.Context, failCount int) error {
	delay := b.DelayFor(failCount)
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

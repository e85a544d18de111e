// Package backoff computes retry delays and performs cancellable waits.
package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy computes delay = min(BaseDelay * 2^attempt, MaxDelay), optionally
// multiplied by a uniform jitter factor in [0.5, 1.0].
type Policy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    bool

	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// DefaultPolicy: 500ms, 1s, 2s, 4s ... capped at 30s, jittered.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
		Jitter:    true,
	}
}

// NextDelay returns the delay before retry number attempt (0-indexed).
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.BaseDelay <= 0 {
		return 0
	}

	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}

	if p.Jitter {
		r := rand.Float64
		if p.Rand != nil {
			r = p.Rand
		}
		delay *= 0.5 + 0.5*r()
	}
	return time.Duration(delay)
}

// Validate rejects policies that would produce nonsensical delays.
func (p Policy) Validate() error {
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay must not be negative: %s", p.BaseDelay)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("max delay must not be negative: %s", p.MaxDelay)
	}
	if p.MaxDelay > 0 && p.BaseDelay > p.MaxDelay {
		return fmt.Errorf("base delay %s exceeds max delay %s", p.BaseDelay, p.MaxDelay)
	}
	return nil
}

// Wait sleeps for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry calls fn up to maxAttempts times, waiting NextDelay between calls.
// It stops early when retryable reports false for the returned error.
func Retry(ctx context.Context, p Policy, maxAttempts int, retryable func(error) bool, fn func(context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		if err := Wait(ctx, p.NextDelay(attempt)); err != nil {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

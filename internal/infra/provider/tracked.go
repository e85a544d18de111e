package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/zerofail/internal/core/domain"
)

// Tracked wraps an adapter with health accounting, a consecutive-failure
// circuit breaker and Retry-After throttling. While the breaker is open Invoke
// fails fast with a permanent ErrCircuitOpen. While a throttle window is
// active it fails fast with a transient ErrThrottled carrying the remaining
// wait. Neither reaches the wrapped provider.
type Tracked struct {
	inner Adapter

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu               sync.RWMutex
	health           HealthStatus
	totalLatency     time.Duration
	successCount     int
	failureCount     int
	consecutiveFails int
	openedAt         time.Time
	halfOpenProbe    bool
}

// NewTracked wraps inner. A threshold <= 0 disables the breaker.
func NewTracked(inner Adapter, threshold int, cooldown time.Duration) *Tracked {
	return &Tracked{
		inner:     inner,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		health: HealthStatus{
			Name:      inner.Name(),
			Available: true,
			Breaker:   BreakerClosed,
		},
	}
}

// Name returns the wrapped provider's name.
func (t *Tracked) Name() string {
	return t.inner.Name()
}

// Unwrap returns the wrapped adapter.
func (t *Tracked) Unwrap() Adapter {
	return t.inner
}

// Invoke implements Adapter.
func (t *Tracked) Invoke(ctx context.Context, prompt string) (domain.Content, error) {
	if err := t.admit(); err != nil {
		return domain.Content{}, err
	}

	start := t.now()
	content, err := t.inner.Invoke(ctx, prompt)
	latency := t.now().Sub(start)

	if err != nil {
		// a cancelled parent says nothing about the provider
		if errors.Is(err, context.Canceled) {
			t.releaseProbe()
			return content, err
		}
		t.RecordFailure(err)
		return content, err
	}
	t.RecordSuccess(latency)
	return content, nil
}

// admit returns an error when the provider must not be called right now.
func (t *Tracked) admit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if until := t.health.ThrottledUntil; !until.IsZero() && now.Before(until) {
		return &Error{
			Provider:   t.health.Name,
			Kind:       Transient,
			RetryAfter: until.Sub(now),
			Err:        fmt.Errorf("%w for %s", ErrThrottled, until.Sub(now).Round(time.Millisecond)),
		}
	}

	switch t.health.Breaker {
	case BreakerOpen:
		if now.Sub(t.openedAt) < t.cooldown {
			return NewPermanent(t.health.Name, ErrCircuitOpen)
		}
		// cooldown elapsed: let a single probe through
		t.health.Breaker = BreakerHalfOpen
		t.halfOpenProbe = true
		return nil
	case BreakerHalfOpen:
		if t.halfOpenProbe {
			return NewPermanent(t.health.Name, ErrCircuitOpen)
		}
		t.halfOpenProbe = true
	}
	return nil
}

// releaseProbe gives up a half-open probe slot without a verdict, so the
// next call can probe again.
func (t *Tracked) releaseProbe() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.halfOpenProbe = false
}

// RecordSuccess closes the breaker and updates latency statistics.
func (t *Tracked) RecordSuccess(latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.successCount++
	t.health.Requests++
	t.totalLatency += latency
	t.consecutiveFails = 0
	t.halfOpenProbe = false
	t.health.ConsecutiveFails = 0
	t.health.LastSuccessAt = t.now()
	t.health.Breaker = BreakerClosed
	t.health.Available = true

	t.health.ErrorRate = float64(t.failureCount) / float64(t.health.Requests)
	t.health.Latency = t.totalLatency / time.Duration(t.successCount)
}

// RecordFailure counts a failed call and opens the breaker once the
// consecutive failure threshold is reached.
func (t *Tracked) RecordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.failureCount++
	t.health.Requests++
	t.consecutiveFails++
	t.health.ConsecutiveFails = t.consecutiveFails
	t.health.LastFailureAt = now
	t.health.ErrorRate = float64(t.failureCount) / float64(t.health.Requests)

	if ra := RetryAfter(err); ra > 0 {
		t.health.ThrottledUntil = now.Add(ra)
	}

	halfOpen := t.health.Breaker == BreakerHalfOpen
	t.halfOpenProbe = false
	if t.threshold > 0 && (halfOpen || t.consecutiveFails >= t.threshold) {
		t.health.Breaker = BreakerOpen
		t.health.Available = false
		t.openedAt = now
	}
}

// Health returns a snapshot of the provider's health.
func (t *Tracked) Health() HealthStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.health
}

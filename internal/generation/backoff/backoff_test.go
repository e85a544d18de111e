package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicy_NextDelay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{50, time.Second},
		{5000, time.Second},
	}

	for _, tt := range tests {
		if got := p.NextDelay(tt.attempt); got != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_NextDelayIsPure(t *testing.T) {
	p := Policy{BaseDelay: 250 * time.Millisecond, MaxDelay: 10 * time.Second}
	for i := 0; i < 6; i++ {
		if p.NextDelay(i) != p.NextDelay(i) {
			t.Fatalf("NextDelay(%d) not deterministic", i)
		}
	}
}

func TestPolicy_Jitter(t *testing.T) {
	tests := []struct {
		name string
		r    float64
		want time.Duration
	}{
		{"low", 0, 200 * time.Millisecond},
		{"mid", 0.5, 300 * time.Millisecond},
		{"high", 1, 400 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{
				BaseDelay: 400 * time.Millisecond,
				MaxDelay:  time.Second,
				Jitter:    true,
				Rand:      func() float64 { return tt.r },
			}
			if got := p.NextDelay(0); got != tt.want {
				t.Errorf("NextDelay(0) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_JitterBounds(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: true}
	for i := 0; i < 200; i++ {
		d := p.NextDelay(3)
		if d < 400*time.Millisecond || d > 800*time.Millisecond {
			t.Fatalf("jittered delay %v outside [400ms, 800ms]", d)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	if err := (Policy{BaseDelay: 2 * time.Second, MaxDelay: time.Second}).Validate(); err == nil {
		t.Error("expected error when base exceeds max")
	}
	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
}

func TestWait_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Wait(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait did not return promptly after cancellation")
	}
}

func TestWait_Elapses(t *testing.T) {
	if err := Wait(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRetry(t *testing.T) {
	p := Policy{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	errBoom := errors.New("boom")

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), p, 3, nil, func(context.Context) error {
			calls++
			if calls < 3 {
				return errBoom
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("stops on non-retryable", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), p, 5, func(error) bool { return false }, func(context.Context) error {
			calls++
			return errBoom
		})
		if !errors.Is(err, errBoom) || calls != 1 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("wraps last error", func(t *testing.T) {
		err := Retry(context.Background(), p, 2, nil, func(context.Context) error { return errBoom })
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected wrapped errBoom, got %v", err)
		}
	})
}

package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/generation/backoff"
	"github.com/vietddude/zerofail/internal/generation/metrics"
)

// Sink delivers escalation signals to an operator channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, s domain.EscalationSignal) error
}

// LogSink writes signals to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (LogSink) Name() string { return "log" }

func (l LogSink) Send(_ context.Context, s domain.EscalationSignal) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("Escalation raised",
		"kind", s.Kind,
		"service_tier", s.ServiceTier,
		"value", s.Value,
		"threshold", s.Threshold,
		"samples", s.Samples,
		"message", s.Message,
	)
	return nil
}

// Dispatcher fans signals out to sinks, suppressing repeats of the same
// signal key within the cooldown window.
type Dispatcher struct {
	sinks    []Sink
	cooldown time.Duration
	retry    backoff.Policy
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(cooldown time.Duration, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:    sinks,
		cooldown: cooldown,
		retry:    backoff.Policy{BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Jitter: true},
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// AddSink registers another sink.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Dispatch sends every signal not in cooldown and returns how many were sent.
// Sink failures are retried briefly, then logged; they never block other sinks.
func (d *Dispatcher) Dispatch(ctx context.Context, signals []domain.EscalationSignal) int {
	sent := 0
	for _, s := range signals {
		if !d.claim(s.Key()) {
			continue
		}
		sent++
		metrics.EscalationsTotal.WithLabelValues(string(s.Kind)).Inc()

		d.mu.Lock()
		sinks := append([]Sink(nil), d.sinks...)
		d.mu.Unlock()

		for _, sink := range sinks {
			err := backoff.Retry(ctx, d.retry, 3, nil, func(ctx context.Context) error {
				return sink.Send(ctx, s)
			})
			if err != nil {
				slog.Warn("Failed to deliver escalation", "sink", sink.Name(), "kind", s.Kind, "error", err)
			}
		}
	}
	return sent
}

// claim records the key as sent unless it was sent within the cooldown.
func (d *Dispatcher) claim(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.lastSent[key]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	d.lastSent[key] = now
	return true
}

package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/infra/storage"
)

// Checker evaluates escalation thresholds.
type Checker interface {
	CheckEscalation() []domain.EscalationSignal
}

// Dispatcher delivers signals and reports how many were sent.
type Dispatcher interface {
	Dispatch(ctx context.Context, signals []domain.EscalationSignal) int
}

// EscalationWorker periodically checks the tracker and dispatches signals.
type EscalationWorker struct {
	checker    Checker
	dispatcher Dispatcher
	history    storage.SignalRepository // optional
	interval   time.Duration
}

// NewEscalationWorker creates the worker. history may be nil.
func NewEscalationWorker(
	checker Checker,
	dispatcher Dispatcher,
	history storage.SignalRepository,
	interval time.Duration,
) *EscalationWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &EscalationWorker{
		checker:    checker,
		dispatcher: dispatcher,
		history:    history,
		interval:   interval,
	}
}

// Start runs the check loop until ctx is done.
func (w *EscalationWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs one evaluation and returns the number of signals dispatched.
func (w *EscalationWorker) Check(ctx context.Context) int {
	signals := w.checker.CheckEscalation()
	if len(signals) == 0 {
		return 0
	}

	if w.history != nil {
		for _, s := range signals {
			if err := w.history.SaveSignal(ctx, s); err != nil {
				slog.Warn("[Escalation] failed to store signal", "kind", s.Kind, "error", err)
			}
		}
	}

	sent := w.dispatcher.Dispatch(ctx, signals)
	slog.Debug("[Escalation] check complete", "raised", len(signals), "dispatched", sent)
	return sent
}

package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/zerofail/internal/infra/storage"
)

// Pruner deletes delivery records older than the retention period.
type Pruner struct {
	retention time.Duration
	interval  time.Duration
	repo      storage.DeliveryRepository
	now       func() time.Time
}

// NewPruner creates a new Pruner worker. A zero interval is derived from the
// retention period.
func NewPruner(retention, interval time.Duration, repo storage.DeliveryRepository) *Pruner {
	if interval <= 0 {
		// 10% of retention, clamped to [1m, 1h]
		interval = min(retention/10, time.Hour)
		interval = max(interval, time.Minute)
	}
	return &Pruner{
		retention: retention,
		interval:  interval,
		repo:      repo,
		now:       time.Now,
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention).UnixMilli()

	n, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("[Pruner] failed to prune delivery records", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("[Pruner] pruned delivery records", "count", n, "retention", p.retention)
	}
	return n
}

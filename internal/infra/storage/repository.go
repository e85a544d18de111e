package storage

import (
	"context"
	"errors"
	"sort"

	"github.com/vietddude/zerofail/internal/core/domain"
)

var (
	// ErrRecordNotFound is returned when a delivery record doesn't exist
	ErrRecordNotFound = errors.New("delivery record not found")
)

// DeliveryRepository persists delivery records
type DeliveryRepository interface {
	// Save stores a record; saving an existing ID overwrites it
	Save(ctx context.Context, rec *domain.DeliveryRecord) error

	// Get retrieves a record by ID
	Get(ctx context.Context, id string) (*domain.DeliveryRecord, error)

	// Recent returns up to limit records, newest first
	Recent(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error)

	// SummaryBySource aggregates records created at or after since (unix millis)
	SummaryBySource(ctx context.Context, since int64) ([]domain.SourceSummary, error)

	// DeleteOlderThan removes records created before cutoff (unix millis)
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

// SignalRepository keeps a history of raised escalation signals
type SignalRepository interface {
	// SaveSignal appends a signal to the history
	SaveSignal(ctx context.Context, s domain.EscalationSignal) error

	// RecentSignals returns up to limit signals, newest first
	RecentSignals(ctx context.Context, limit int) ([]domain.EscalationSignal, error)
}

// Summarize aggregates records in memory for backends without query support.
// Output is sorted by source.
func Summarize(records []*domain.DeliveryRecord, since int64) []domain.SourceSummary {
	type acc struct {
		count      int64
		latency    int64
		score      float64
		violations int64
	}
	bySource := make(map[string]*acc)
	for _, r := range records {
		if r.CreatedAt < since {
			continue
		}
		a, ok := bySource[r.Source]
		if !ok {
			a = &acc{}
			bySource[r.Source] = a
		}
		a.count++
		a.latency += r.LatencyMs
		a.score += r.Score
		if r.SLAViolated {
			a.violations++
		}
	}

	out := make([]domain.SourceSummary, 0, len(bySource))
	for src, a := range bySource {
		out = append(out, domain.SourceSummary{
			Source:       src,
			Count:        a.count,
			AvgLatencyMs: float64(a.latency) / float64(a.count),
			AvgScore:     a.score / float64(a.count),
			Violations:   a.violations,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/infra/storage"
)

// DeliveryRepo implements storage.DeliveryRepository.
type DeliveryRepo struct {
	db *DB
}

// NewDeliveryRepo creates a SQL delivery repository.
func NewDeliveryRepo(db *DB) *DeliveryRepo {
	return &DeliveryRepo{db: db}
}

const upsertDelivery = `
INSERT INTO deliveries (
    id, request_id, class, service_tier, source, provider, degraded,
    attempts, failures, score, latency_ms, sla_violated, created_at
) VALUES (
    :id, :request_id, :class, :service_tier, :source, :provider, :degraded,
    :attempts, :failures, :score, :latency_ms, :sla_violated, :created_at
)
ON CONFLICT (id) DO UPDATE SET
    source = excluded.source,
    provider = excluded.provider,
    degraded = excluded.degraded,
    attempts = excluded.attempts,
    failures = excluded.failures,
    score = excluded.score,
    latency_ms = excluded.latency_ms,
    sla_violated = excluded.sla_violated`

// Save stores or overwrites a record.
func (r *DeliveryRepo) Save(ctx context.Context, rec *domain.DeliveryRecord) error {
	if _, err := r.db.NamedExecContext(ctx, upsertDelivery, rec); err != nil {
		return fmt.Errorf("failed to save delivery: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (r *DeliveryRepo) Get(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	var rec domain.DeliveryRecord
	err := r.db.GetContext(ctx, &rec, r.db.Rebind(`SELECT * FROM deliveries WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	return &rec, nil
}

// Recent returns the newest records first.
func (r *DeliveryRepo) Recent(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []*domain.DeliveryRecord
	q := r.db.Rebind(`SELECT * FROM deliveries ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &recs, q, limit); err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return recs, nil
}

// SummaryBySource aggregates records per source since the given unix millis.
func (r *DeliveryRepo) SummaryBySource(ctx context.Context, since int64) ([]domain.SourceSummary, error) {
	q := r.db.Rebind(`
SELECT
    source,
    COUNT(*) AS count,
    CAST(AVG(latency_ms) AS DOUBLE PRECISION) AS avg_latency_ms,
    CAST(AVG(score) AS DOUBLE PRECISION) AS avg_score,
    SUM(CASE WHEN sla_violated THEN 1 ELSE 0 END) AS violations
FROM deliveries
WHERE created_at >= ?
GROUP BY source
ORDER BY source`)

	var out []domain.SourceSummary
	if err := r.db.SelectContext(ctx, &out, q, since); err != nil {
		return nil, fmt.Errorf("failed to summarize deliveries: %w", err)
	}
	return out, nil
}

// DeleteOlderThan removes records created before cutoff.
func (r *DeliveryRepo) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM deliveries WHERE created_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune deliveries: %w", err)
	}
	return res.RowsAffected()
}

// SignalRepo implements storage.SignalRepository.
type SignalRepo struct {
	db *DB
}

// NewSignalRepo creates a SQL escalation history repository.
func NewSignalRepo(db *DB) *SignalRepo {
	return &SignalRepo{db: db}
}

type signalRow struct {
	ID          string  `db:"id"`
	Kind        string  `db:"kind"`
	ServiceTier string  `db:"service_tier"`
	Value       float64 `db:"value"`
	Threshold   float64 `db:"threshold"`
	Samples     int64   `db:"samples"`
	Message     string  `db:"message"`
	RaisedAt    int64   `db:"raised_at"`
}

// SaveSignal appends a signal.
func (r *SignalRepo) SaveSignal(ctx context.Context, s domain.EscalationSignal) error {
	row := signalRow{
		ID:          uuid.NewString(),
		Kind:        string(s.Kind),
		ServiceTier: string(s.ServiceTier),
		Value:       s.Value,
		Threshold:   s.Threshold,
		Samples:     s.Samples,
		Message:     s.Message,
		RaisedAt:    s.RaisedAt.UnixMilli(),
	}
	_, err := r.db.NamedExecContext(ctx, `
INSERT INTO escalations (id, kind, service_tier, value, threshold, samples, message, raised_at)
VALUES (:id, :kind, :service_tier, :value, :threshold, :samples, :message, :raised_at)`, row)
	if err != nil {
		return fmt.Errorf("failed to save escalation: %w", err)
	}
	return nil
}

// RecentSignals returns the newest signals first.
func (r *SignalRepo) RecentSignals(ctx context.Context, limit int) ([]domain.EscalationSignal, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []signalRow
	q := r.db.Rebind(`SELECT * FROM escalations ORDER BY raised_at DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}

	out := make([]domain.EscalationSignal, len(rows))
	for i, row := range rows {
		out[i] = domain.EscalationSignal{
			Kind:        domain.SignalKind(row.Kind),
			ServiceTier: domain.ServiceTier(row.ServiceTier),
			Value:       row.Value,
			Threshold:   row.Threshold,
			Samples:     row.Samples,
			Message:     row.Message,
			RaisedAt:    time.UnixMilli(row.RaisedAt),
		}
	}
	return out, nil
}

var (
	_ storage.DeliveryRepository = (*DeliveryRepo)(nil)
	_ storage.SignalRepository   = (*SignalRepo)(nil)
)

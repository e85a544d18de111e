package domain

// DeliveryRecord is the persisted projection of a PipelineResult.
// Content is not stored.
type DeliveryRecord struct {
	ID          string  `json:"id" db:"id"`
	RequestID   string  `json:"request_id" db:"request_id"`
	Class       string  `json:"class" db:"class"`
	ServiceTier string  `json:"service_tier" db:"service_tier"`
	Source      string  `json:"source" db:"source"`
	Provider    string  `json:"provider" db:"provider"`
	Degraded    string  `json:"degraded" db:"degraded"`
	Attempts    int     `json:"attempts" db:"attempts"`
	Failures    int     `json:"failures" db:"failures"`
	Score       float64 `json:"score" db:"score"`
	LatencyMs   int64   `json:"latency_ms" db:"latency_ms"`
	SLAViolated bool    `json:"sla_violated" db:"sla_violated"`
	CreatedAt   int64   `json:"created_at" db:"created_at"` // unix millis
}

// SourceSummary aggregates persisted records per source.
type SourceSummary struct {
	Source       string  `json:"source" db:"source"`
	Count        int64   `json:"count" db:"count"`
	AvgLatencyMs float64 `json:"avg_latency_ms" db:"avg_latency_ms"`
	AvgScore     float64 `json:"avg_score" db:"avg_score"`
	Violations   int64   `json:"violations" db:"violations"`
}

// NewDeliveryRecord projects a result for storage.
func NewDeliveryRecord(id string, r PipelineResult, slaViolated bool) *DeliveryRecord {
	return &DeliveryRecord{
		ID:          id,
		RequestID:   r.RequestID,
		Class:       string(r.Class),
		ServiceTier: string(r.ServiceTier),
		Source:      string(r.Source),
		Provider:    r.Provider,
		Degraded:    string(r.Degraded),
		Attempts:    r.ProviderAttempts(),
		Failures:    r.FailedAttempts(),
		Score:       r.FinalScore.Overall,
		LatencyMs:   r.Elapsed.Milliseconds(),
		SLAViolated: slaViolated,
		CreatedAt:   r.CompletedAt.UnixMilli(),
	}
}

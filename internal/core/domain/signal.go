package domain

import "time"

type SignalKind string

const (
	SignalTemplateRate SignalKind = "template_rate"
	SignalFailureRate  SignalKind = "failure_rate"
	SignalLatency      SignalKind = "avg_latency"
	SignalSLAViolation SignalKind = "sla_violation_rate"
)

// EscalationSignal tells operators that a delivery threshold was crossed.
type EscalationSignal struct {
	Kind        SignalKind  `json:"kind"`
	ServiceTier ServiceTier `json:"service_tier,omitempty"`
	Value       float64     `json:"value"`
	Threshold   float64     `json:"threshold"`
	Samples     int64       `json:"samples"`
	Message     string      `json:"message"`
	RaisedAt    time.Time   `json:"raised_at"`
}

// Key identifies a signal for de-duplication.
func (s EscalationSignal) Key() string {
	if s.ServiceTier == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + string(s.ServiceTier)
}

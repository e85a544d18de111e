package domain

import "time"

// AttemptState is the terminal state of one provider call.
type AttemptState string

const (
	StateAccepted        AttemptState = "accepted"
	StateRejectedQuality AttemptState = "rejected-quality"
	StateFailedTransport AttemptState = "failed-transport"
	StateFailedTimeout   AttemptState = "failed-timeout"

	// Synthetic states, recorded only when no provider call happened.
	StateExhausted        AttemptState = "exhausted"
	StateDeadlineExceeded AttemptState = "deadline-exceeded"
)

// Failed reports whether the state is a transport-level failure.
func (s AttemptState) Failed() bool {
	return s == StateFailedTransport || s == StateFailedTimeout
}

// AttemptOutcome records one entry of the attempt history.
type AttemptOutcome struct {
	TierIndex     int           `json:"tier_index"`
	Provider      string        `json:"provider"`
	Attempt       int           `json:"attempt"`
	State         AttemptState  `json:"state"`
	Duration      time.Duration `json:"duration"`
	BackoffBefore time.Duration `json:"backoff_before,omitempty"`
	Score         *QualityScore `json:"score,omitempty"`
	Error         string        `json:"error,omitempty"`
	Permanent     bool          `json:"permanent,omitempty"`
}

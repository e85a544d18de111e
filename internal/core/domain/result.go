package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Source identifies where the delivered content came from.
type Source string

const SourceTemplate Source = "template"

// TierSource returns the source label for the tier at index i.
func TierSource(i int) Source {
	return Source(fmt.Sprintf("tier-%d", i))
}

// TierIndex returns the tier index encoded in the source, or -1 for the template.
func (s Source) TierIndex() int {
	rest, ok := strings.CutPrefix(string(s), "tier-")
	if !ok {
		return -1
	}
	i, err := strconv.Atoi(rest)
	if err != nil {
		return -1
	}
	return i
}

// DegradedReason explains why a result came from the template.
type DegradedReason string

const (
	DegradedNone      DegradedReason = ""
	DegradedExhausted DegradedReason = "all-tiers-exhausted"
	DegradedDeadline  DegradedReason = "deadline-exceeded"
)

// PipelineResult is always produced, whatever happened upstream.
type PipelineResult struct {
	RequestID   string           `json:"request_id"`
	Class       ContentClass     `json:"class"`
	ServiceTier ServiceTier      `json:"service_tier"`
	Content     Content          `json:"content"`
	Source      Source           `json:"source"`
	Provider    string           `json:"provider,omitempty"`
	Attempts    []AttemptOutcome `json:"attempts"`
	FinalScore  QualityScore     `json:"final_score"`
	Degraded    DegradedReason   `json:"degraded,omitempty"`
	Elapsed     time.Duration    `json:"elapsed"`
	CompletedAt time.Time        `json:"completed_at"`
}

// FromTemplate reports whether the result was served by the template fallback.
func (r PipelineResult) FromTemplate() bool {
	return r.Source == SourceTemplate
}

// FailedAttempts counts transport and timeout failures in the history.
func (r PipelineResult) FailedAttempts() int {
	n := 0
	for _, a := range r.Attempts {
		if a.State.Failed() {
			n++
		}
	}
	return n
}

// ProviderAttempts counts attempts that actually reached a provider.
func (r PipelineResult) ProviderAttempts() int {
	n := 0
	for _, a := range r.Attempts {
		if a.State != StateExhausted && a.State != StateDeadlineExceeded {
			n++
		}
	}
	return n
}

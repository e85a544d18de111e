package domain

import (
	"math"
	"sort"
)

// Severity of an assessor finding
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON payloads.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Finding is a single observation produced while scoring.
type Finding struct {
	Criterion string   `json:"criterion"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
}

// QualityScore is the assessor verdict for one piece of content.
type QualityScore struct {
	Overall   float64            `json:"overall"`
	Criteria  map[string]float64 `json:"criteria"`
	Weights   map[string]float64 `json:"weights"`
	Findings  []Finding          `json:"findings,omitempty"`
	Threshold float64            `json:"threshold"`
	Passed    bool               `json:"passed"`
}

// NewQualityScore builds a score and derives Overall from the criteria.
func NewQualityScore(criteria, weights map[string]float64, findings []Finding) QualityScore {
	s := QualityScore{
		Criteria: criteria,
		Weights:  weights,
		Findings: findings,
	}
	s.Recompute()
	return s
}

// Critical reports whether any finding is critical.
func (s QualityScore) Critical() bool {
	for _, f := range s.Findings {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Recompute sets Overall to the weighted sum of the criteria, normalised by the
// weights actually present. A critical finding pins Overall to zero.
func (s *QualityScore) Recompute() {
	if s.Critical() {
		s.Overall = 0
		s.Passed = false
		return
	}

	keys := make([]string, 0, len(s.Criteria))
	for k := range s.Criteria {
		keys = append(keys, k)
	}
	// fixed order so float summation is reproducible
	sort.Strings(keys)

	var sum, totalWeight float64
	for _, k := range keys {
		w, ok := s.Weights[k]
		if !ok {
			continue
		}
		sum += clamp01(s.Criteria[k]) * w
		totalWeight += w
	}
	if totalWeight == 0 {
		s.Overall = 0
		return
	}
	s.Overall = math.Round(sum/totalWeight*1e6) / 1e6
}

// Gate applies an acceptance threshold and returns the updated score.
func (s QualityScore) Gate(threshold float64) QualityScore {
	s.Recompute()
	s.Threshold = threshold
	s.Passed = !s.Critical() && s.Overall >= threshold
	return s
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

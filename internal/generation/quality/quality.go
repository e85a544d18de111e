// Package quality scores generated content before it is delivered.
//
// Assessors are deterministic: the same content always produces the same
// criterion scores. Thresholds are applied by the caller through
// domain.QualityScore.Gate.
package quality

import (
	"fmt"
	"math"
	"sort"

	"github.com/vietddude/zerofail/internal/core/domain"
)

// Submission is the input to an assessor.
type Submission struct {
	Content string
	Class   domain.ContentClass
	// Topic is what the caller asked about; used for relevance scoring.
	Topic string
}

// Assessor scores a submission.
type Assessor interface {
	Assess(sub Submission) domain.QualityScore
}

// Selector dispatches to the assessor registered for the submission class.
type Selector struct {
	byClass  map[domain.ContentClass]Assessor
	fallback Assessor
}

// NewSelector builds the standard prose/code selector from cfg.
func NewSelector(cfg Config) *Selector {
	prose := NewProseAssessor(cfg.Prose)
	return &Selector{
		byClass: map[domain.ContentClass]Assessor{
			domain.ClassProse: prose,
			domain.ClassCode:  NewCodeAssessor(cfg.Code),
		},
		fallback: prose,
	}
}

// Register replaces the assessor for a class.
func (s *Selector) Register(class domain.ContentClass, a Assessor) {
	s.byClass[class] = a
}

// Assess implements Assessor.
func (s *Selector) Assess(sub Submission) domain.QualityScore {
	if a, ok := s.byClass[sub.Class]; ok {
		return a.Assess(sub)
	}
	return s.fallback.Assess(sub)
}

// Config groups the per-class assessor settings.
type Config struct {
	Prose ProseConfig `yaml:"prose"`
	Code  CodeConfig  `yaml:"code"`
}

// ApplyDefaults fills unset fields with the built-in rules.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if len(c.Prose.Weights) == 0 {
		c.Prose.Weights = d.Prose.Weights
	}
	if len(c.Prose.MinWords) == 0 {
		c.Prose.MinWords = d.Prose.MinWords
	}
	if c.Prose.BannedPhrases == nil {
		c.Prose.BannedPhrases = d.Prose.BannedPhrases
	}
	if c.Prose.AbsoluteClaims == nil {
		c.Prose.AbsoluteClaims = d.Prose.AbsoluteClaims
	}

	if len(c.Code.Weights) == 0 {
		c.Code.Weights = d.Code.Weights
	}
	if c.Code.ForbiddenImports == nil {
		c.Code.ForbiddenImports = d.Code.ForbiddenImports
	}
	if c.Code.DependencyBlocklist == nil {
		c.Code.DependencyBlocklist = d.Code.DependencyBlocklist
	}
	if c.Code.MinLines == 0 {
		c.Code.MinLines = d.Code.MinLines
	}
	if c.Code.MaxLines == 0 {
		c.Code.MaxLines = d.Code.MaxLines
	}
	if c.Code.MaxLineLength == 0 {
		c.Code.MaxLineLength = d.Code.MaxLineLength
	}
	if c.Code.MaxNesting == 0 {
		c.Code.MaxNesting = d.Code.MaxNesting
	}
}

// Validate checks that both weight sets are known criteria summing to 1.
func (c Config) Validate() error {
	if err := validateWeights("prose", c.Prose.Weights, proseCriteria); err != nil {
		return err
	}
	return validateWeights("code", c.Code.Weights, codeCriteria)
}

// DefaultConfig returns the built-in rule set.
func DefaultConfig() Config {
	return Config{
		Prose: ProseConfig{
			Weights: map[string]float64{
				CriterionCoherence:    0.20,
				CriterionRelevance:    0.25,
				CriterionBrand:        0.15,
				CriterionFactual:      0.20,
				CriterionCompleteness: 0.20,
			},
			MinWords: map[domain.ContentClass]int{
				domain.ClassProse: 120,
				domain.ClassOther: 30,
			},
			BannedPhrases: []string{
				"as an ai",
				"as a language model",
				"i cannot",
				"i can't",
				"i'm not able to",
				"my training",
				"my programming",
				"beyond my capabilities",
				"i'd be happy to help",
				"how can i assist",
				"feel free to ask",
			},
			AbsoluteClaims: []string{
				"guaranteed",
				"100% safe",
				"risk-free",
				"always works",
				"never fails",
				"proven to",
				"scientifically proven",
				"no side effects",
				"miracle cure",
			},
		},
		Code: CodeConfig{
			Weights: map[string]float64{
				CriterionDocumentation: 0.35,
				CriterionComplexity:    0.35,
				CriterionDependencies:  0.30,
			},
			ForbiddenImports: []string{
				"child_process",
				"subprocess",
				"os/exec",
				"ctypes",
				"vm",
				"pickle",
				"marshal",
			},
			DependencyBlocklist: []string{
				"event-stream",
				"flatmap-stream",
				"node-serialize",
				"request",
				"pycrypto",
				"colors",
				"ua-parser-js",
			},
			MinLines:      3,
			MaxLines:      400,
			MaxLineLength: 120,
			MaxNesting:    5,
		},
	}
}

func validateWeights(name string, weights map[string]float64, known []string) error {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}

	var sum float64
	for k, w := range weights {
		if !allowed[k] {
			return fmt.Errorf("%s weights: unknown criterion %q", name, k)
		}
		if w < 0 {
			return fmt.Errorf("%s weights: %q is negative", name, k)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%s weights sum to %.4f, want 1.0", name, sum)
	}
	return nil
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sortFindings keeps output order independent of rule iteration order.
func sortFindings(fs []domain.Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Criterion != fs[j].Criterion {
			return fs[i].Criterion < fs[j].Criterion
		}
		return fs[i].Message < fs[j].Message
	})
}

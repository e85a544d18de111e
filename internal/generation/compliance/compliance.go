// Package compliance rewrites delivered content according to regex rules,
// appending disclaimers or replacing prohibited wording. It runs on the
// pipeline result after delivery is decided and never changes scoring.
package compliance

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/generation/metrics"
)

// Rule matches content and either replaces the match or appends a disclaimer.
type Rule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	// Replace, when set, substitutes every match ($1 style groups allowed).
	Replace string `yaml:"replace"`
	// Disclaimer is appended once to content that matches.
	Disclaimer string `yaml:"disclaimer"`
	// Classes restricts the rule; empty applies to all classes.
	Classes []domain.ContentClass `yaml:"classes"`
	// SkipTemplates leaves template fallback content untouched.
	SkipTemplates bool `yaml:"skip_templates"`
}

// Config lists the rules in application order.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Rules   []Rule `yaml:"rules"`
}

// Validate checks rule names are unique and patterns compile.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r.Name == "" {
			return fmt.Errorf("compliance rule %d: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("compliance rule %q: duplicate name", r.Name)
		}
		seen[r.Name] = true
		if r.Pattern == "" {
			return fmt.Errorf("compliance rule %q: pattern is required", r.Name)
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("compliance rule %q: %w", r.Name, err)
		}
		if r.Replace == "" && r.Disclaimer == "" {
			return fmt.Errorf("compliance rule %q: needs replace or disclaimer", r.Name)
		}
	}
	return nil
}

type compiled struct {
	Rule
	re      *regexp.Regexp
	classes map[domain.ContentClass]bool
}

// Processor applies the configured rules.
type Processor struct {
	rules []compiled
}

// New compiles the rules. A disabled config yields a processor that does nothing.
func New(cfg Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Processor{}
	if !cfg.Enabled {
		return p, nil
	}
	for _, r := range cfg.Rules {
		c := compiled{Rule: r, re: regexp.MustCompile(r.Pattern)}
		if len(r.Classes) > 0 {
			c.classes = make(map[domain.ContentClass]bool, len(r.Classes))
			for _, cl := range r.Classes {
				c.classes[cl] = true
			}
		}
		p.rules = append(p.rules, c)
	}
	return p, nil
}

// Apply rewrites the result content and returns the names of the rules that
// fired. The result is modified in place.
func (p *Processor) Apply(r *domain.PipelineResult) []string {
	if p == nil || len(p.rules) == 0 {
		return nil
	}

	text := r.Content.Text
	var fired []string
	for _, rule := range p.rules {
		if rule.classes != nil && !rule.classes[r.Class] {
			continue
		}
		if rule.SkipTemplates && r.FromTemplate() {
			continue
		}
		if !rule.re.MatchString(text) {
			continue
		}

		if rule.Replace != "" {
			text = rule.re.ReplaceAllString(text, rule.Replace)
		}
		if rule.Disclaimer != "" && !strings.Contains(text, rule.Disclaimer) {
			text = strings.TrimRight(text, "\n") + "\n\n" + rule.Disclaimer
		}
		fired = append(fired, rule.Name)
		metrics.ComplianceRewrites.WithLabelValues(rule.Name).Inc()
	}
	r.Content.Text = text
	return fired
}

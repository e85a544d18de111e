package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vietddude/zerofail/internal/core/domain"
)

const (
	CriterionCoherence    = "coherence"
	CriterionRelevance    = "relevance"
	CriterionBrand        = "brand_alignment"
	CriterionFactual      = "factual_accuracy"
	CriterionCompleteness = "completeness"
)

var proseCriteria = []string{
	CriterionCoherence,
	CriterionRelevance,
	CriterionBrand,
	CriterionFactual,
	CriterionCompleteness,
}

// ProseConfig tunes the prose heuristics.
type ProseConfig struct {
	Weights        map[string]float64          `yaml:"weights"`
	MinWords       map[domain.ContentClass]int `yaml:"min_words"`
	BannedPhrases  []string                    `yaml:"banned_phrases"`
	AbsoluteClaims []string                    `yaml:"absolute_claims"`
}

// ProseAssessor scores natural-language content on five weighted criteria.
type ProseAssessor struct {
	cfg ProseConfig
}

func NewProseAssessor(cfg ProseConfig) *ProseAssessor {
	return &ProseAssessor{cfg: cfg}
}

var (
	statPattern     = regexp.MustCompile(`\b\d+(\.\d+)?\s?%`)
	sourcedPattern  = regexp.MustCompile(`(?i)according to|source:|\bcited\b|\bper the\b|\breported by\b`)
	terminalPattern = regexp.MustCompile(`[.!?:)\]"'` + "`" + `]\s*$`)
)

// Assess implements Assessor.
func (a *ProseAssessor) Assess(sub Submission) domain.QualityScore {
	text := strings.TrimSpace(sub.Content)
	lower := strings.ToLower(text)

	var findings []domain.Finding
	criteria := map[string]float64{}

	if text == "" {
		for _, c := range proseCriteria {
			criteria[c] = 0
		}
		findings = append(findings, domain.Finding{
			Criterion: CriterionCompleteness,
			Severity:  domain.SeverityWarning,
			Message:   "empty response",
		})
		return domain.NewQualityScore(criteria, a.cfg.Weights, findings)
	}

	var f []domain.Finding
	criteria[CriterionCoherence], f = a.coherence(text, lower)
	findings = append(findings, f...)
	criteria[CriterionRelevance], f = a.relevance(lower, sub.Topic)
	findings = append(findings, f...)
	criteria[CriterionBrand], f = a.brand(text, lower)
	findings = append(findings, f...)
	criteria[CriterionFactual], f = a.factual(lower)
	findings = append(findings, f...)
	criteria[CriterionCompleteness], f = a.completeness(text, sub.Class)
	findings = append(findings, f...)

	sortFindings(findings)
	return domain.NewQualityScore(criteria, a.cfg.Weights, findings)
}

// coherence rewards sentences of sane length and penalises repeated sentences
// and output that stops mid-sentence.
func (a *ProseAssessor) coherence(text, lower string) (float64, []domain.Finding) {
	sents := sentences(lower)
	if len(sents) == 0 {
		return 0, nil
	}

	var findings []domain.Finding
	wellFormed := 0
	seen := make(map[string]int)
	for _, s := range sents {
		n := len(words(s))
		if n >= 3 && n <= 40 {
			wellFormed++
		}
		if len(s) > 10 {
			seen[s]++
		}
	}
	score := float64(wellFormed) / float64(len(sents))

	dupes := 0
	for _, c := range seen {
		if c > 1 {
			dupes += c - 1
		}
	}
	if dupes > 0 {
		score *= 1 - float64(dupes)/float64(len(sents))
		findings = append(findings, domain.Finding{
			Criterion: CriterionCoherence,
			Severity:  domain.SeverityWarning,
			Message:   fmt.Sprintf("%d repeated sentence(s)", dupes),
		})
	}

	if !terminalPattern.MatchString(text) {
		score -= 0.1
		findings = append(findings, domain.Finding{
			Criterion: CriterionCoherence,
			Severity:  domain.SeverityInfo,
			Message:   "response appears truncated",
		})
	}
	return round(clamp(score)), findings
}

// relevance measures how many topic keywords the response covers. Full
// marks at 60% coverage.
func (a *ProseAssessor) relevance(lower, topic string) (float64, []domain.Finding) {
	keys := keywords(topic)
	if len(keys) == 0 {
		return 1, nil
	}

	present := make(map[string]bool)
	for _, w := range words(lower) {
		present[strings.Trim(w, "'-")] = true
	}

	found := 0
	for _, k := range keys {
		if present[k] {
			found++
		}
	}
	coverage := float64(found) / float64(len(keys))
	score := clamp(coverage / 0.6)

	var findings []domain.Finding
	if found == 0 {
		findings = append(findings, domain.Finding{
			Criterion: CriterionRelevance,
			Severity:  domain.SeverityWarning,
			Message:   "response does not mention the requested topic",
		})
	}
	return round(score), findings
}

// brand penalises assistant boilerplate, exclamation spam and shouting.
func (a *ProseAssessor) brand(text, lower string) (float64, []domain.Finding) {
	score := 1.0
	var findings []domain.Finding

	for phrase, n := range countOccurrences(lower, a.cfg.BannedPhrases) {
		score -= 0.25 * float64(n)
		findings = append(findings, domain.Finding{
			Criterion: CriterionBrand,
			Severity:  domain.SeverityWarning,
			Message:   fmt.Sprintf("banned phrase %q", phrase),
		})
	}

	wc := len(words(text))
	allowedBangs := wc/100 + 1
	if bangs := strings.Count(text, "!"); bangs > allowedBangs {
		score -= min(0.3, 0.05*float64(bangs-allowedBangs))
	}

	shouting := 0
	for _, w := range words(text) {
		if isShouting(w) {
			shouting++
		}
	}
	if shouting > 0 {
		score -= min(0.3, 0.05*float64(shouting))
	}
	return round(clamp(score)), findings
}

// factual penalises absolute claims and unsourced statistics.
func (a *ProseAssessor) factual(lower string) (float64, []domain.Finding) {
	score := 1.0
	var findings []domain.Finding

	for phrase, n := range countOccurrences(lower, a.cfg.AbsoluteClaims) {
		score -= 0.15 * float64(n)
		findings = append(findings, domain.Finding{
			Criterion: CriterionFactual,
			Severity:  domain.SeverityWarning,
			Message:   fmt.Sprintf("absolute claim %q", phrase),
		})
	}

	if stats := statPattern.FindAllString(lower, -1); len(stats) > 0 && !sourcedPattern.MatchString(lower) {
		score -= min(0.3, 0.05*float64(len(stats)))
		findings = append(findings, domain.Finding{
			Criterion: CriterionFactual,
			Severity:  domain.SeverityInfo,
			Message:   fmt.Sprintf("%d unsourced statistic(s)", len(stats)),
		})
	}
	return round(clamp(score)), findings
}

func (a *ProseAssessor) completeness(text string, class domain.ContentClass) (float64, []domain.Finding) {
	minWords := a.cfg.MinWords[class]
	if minWords <= 0 {
		return 1, nil
	}
	wc := len(words(text))
	if wc >= minWords {
		return 1, nil
	}
	return round(float64(wc) / float64(minWords)), []domain.Finding{{
		Criterion: CriterionCompleteness,
		Severity:  domain.SeverityInfo,
		Message:   fmt.Sprintf("%d words, expected at least %d", wc, minWords),
	}}
}

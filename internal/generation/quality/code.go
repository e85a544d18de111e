package quality

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vietddude/zerofail/internal/core/domain"
)

const (
	CriterionSafety        = "safety"
	CriterionDocumentation = "documentation"
	CriterionComplexity    = "complexity"
	CriterionDependencies  = "dependency_safety"
)

var codeCriteria = []string{
	CriterionDocumentation,
	CriterionComplexity,
	CriterionDependencies,
}

// CodeConfig tunes the code checks.
type CodeConfig struct {
	Weights map[string]float64 `yaml:"weights"`
	// AllowedImports, when non-empty, makes every other import a critical finding.
	AllowedImports      []string `yaml:"allowed_imports"`
	ForbiddenImports    []string `yaml:"forbidden_imports"`
	DependencyBlocklist []string `yaml:"dependency_blocklist"`
	MinLines            int      `yaml:"min_lines"`
	MaxLines            int      `yaml:"max_lines"`
	MaxLineLength       int      `yaml:"max_line_length"`
	MaxNesting          int      `yaml:"max_nesting"`
}

type safetyRule struct {
	name    string
	pattern *regexp.Regexp
}

var safetyRules = []safetyRule{
	{"dynamic code execution", regexp.MustCompile(`(^|[^.\w])(eval|exec)\s*\(`)},
	{"dynamic code execution", regexp.MustCompile(`\b(window|globalThis|self|global)\.eval\s*\(`)},
	{"dynamic code execution", regexp.MustCompile(`\bFunction\s*\(`)},
	{"dynamic code execution", regexp.MustCompile(`\bset(Timeout|Interval)\s*\(\s*["'` + "`" + `]`)},
	{"dynamic code execution", regexp.MustCompile(`\b__import__\s*\(`)},
	{"HTML injection sink", regexp.MustCompile(`\.(inner|outer)HTML\s*\+?=`)},
	{"HTML injection sink", regexp.MustCompile(`\bdocument\.write(ln)?\s*\(`)},
	{"HTML injection sink", regexp.MustCompile(`\bdangerouslySetInnerHTML\b`)},
	{"HTML injection sink", regexp.MustCompile(`\.insertAdjacentHTML\s*\(`)},
	{"shell execution", regexp.MustCompile(`\bos\.(system|popen|exec\w*|spawn\w*)\s*\(`)},
	{"shell execution", regexp.MustCompile(`^\s*from\s+os\s+import\b.*\b(system|popen|exec\w*|spawn\w*)\b`)},
	{"shell execution", regexp.MustCompile(`\bshell\s*=\s*True\b`)},
	{"shell execution", regexp.MustCompile(`Runtime\.getRuntime\(\)\.exec\s*\(`)},
	{"unsafe deserialization", regexp.MustCompile(`\bpickle\.loads?\s*\(`)},
}

var (
	pyImport     = regexp.MustCompile(`^\s*import\s+([\w.]+)`)
	pyFromImport = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`)
	jsRequire    = regexp.MustCompile(`\brequire\(\s*['"]([^'"]+)['"]\s*\)`)
	jsImport     = regexp.MustCompile(`^\s*import\s+(?:[^'"]*?\s+from\s+)?['"]([^'"]+)['"]`)
	jsDynImport  = regexp.MustCompile(`\bimport\(\s*['"]([^'"]+)['"]\s*\)`)
	goImport     = regexp.MustCompile(`^\s*import\s+(?:\w+\s+)?"([^"]+)"`)
	goImportLine = regexp.MustCompile(`^\s*(?:[\w.]+\s+)?"([^"]+)"`)
	fenceLine    = regexp.MustCompile("^\\s*```")
)

// CodeAssessor runs a critical safety pass followed by weighted criteria.
type CodeAssessor struct {
	cfg CodeConfig
}

func NewCodeAssessor(cfg CodeConfig) *CodeAssessor {
	return &CodeAssessor{cfg: cfg}
}

// Assess implements Assessor.
func (a *CodeAssessor) Assess(sub Submission) domain.QualityScore {
	lines := stripFences(sub.Content)
	imports := extractImports(lines)

	var findings []domain.Finding
	findings = append(findings, a.safety(lines, imports)...)

	criteria := map[string]float64{}
	var f []domain.Finding
	criteria[CriterionDocumentation] = a.documentation(lines)
	criteria[CriterionComplexity], f = a.complexity(lines)
	findings = append(findings, f...)
	criteria[CriterionDependencies], f = a.dependencies(imports)
	findings = append(findings, f...)

	sortFindings(findings)
	return domain.NewQualityScore(criteria, a.cfg.Weights, findings)
}

func (a *CodeAssessor) safety(lines, imports []string) []domain.Finding {
	var findings []domain.Finding
	seen := make(map[string]bool)
	add := func(msg string) {
		if seen[msg] {
			return
		}
		seen[msg] = true
		findings = append(findings, domain.Finding{
			Criterion: CriterionSafety,
			Severity:  domain.SeverityCritical,
			Message:   msg,
		})
	}

	for i, line := range lines {
		if isCommentLine(line) {
			continue
		}
		for _, r := range safetyRules {
			if r.pattern.MatchString(line) {
				add(fmt.Sprintf("%s at line %d", r.name, i+1))
			}
		}
	}

	for _, imp := range imports {
		if matchesAny(imp, a.cfg.ForbiddenImports) {
			add(fmt.Sprintf("forbidden import %q", imp))
			continue
		}
		if len(a.cfg.AllowedImports) > 0 && !matchesAny(imp, a.cfg.AllowedImports) {
			add(fmt.Sprintf("unapproved import %q", imp))
		}
	}
	return findings
}

// documentation gives full marks once 15% of non-blank lines are comments.
func (a *CodeAssessor) documentation(lines []string) float64 {
	total, comments := 0, 0
	inBlock := false
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		total++
		switch {
		case inBlock:
			comments++
			if strings.Contains(t, "*/") || strings.Contains(t, `"""`) {
				inBlock = false
			}
		case strings.HasPrefix(t, "/*"):
			comments++
			inBlock = !strings.Contains(t[2:], "*/")
		case strings.HasPrefix(t, `"""`):
			comments++
			inBlock = strings.Count(t, `"""`) == 1
		case isCommentLine(t):
			comments++
		}
	}
	if total == 0 {
		return 0
	}
	return round(clamp(float64(comments) / float64(total) / 0.15))
}

func (a *CodeAssessor) complexity(lines []string) (float64, []domain.Finding) {
	var findings []domain.Finding
	n, long, depth, maxDepth, maxIndent := 0, 0, 0, 0, 0

	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		n++
		if a.cfg.MaxLineLength > 0 && len(line) > a.cfg.MaxLineLength {
			long++
		}
		depth += strings.Count(t, "{") - strings.Count(t, "}")
		maxDepth = max(maxDepth, depth)
		maxIndent = max(maxIndent, indentLevel(line))
	}
	if n == 0 {
		return 0, []domain.Finding{{Criterion: CriterionComplexity, Severity: domain.SeverityWarning, Message: "no code"}}
	}

	score := 1.0
	if n < a.cfg.MinLines {
		score = float64(n) / float64(a.cfg.MinLines)
	}
	if a.cfg.MaxLines > 0 && n > a.cfg.MaxLines {
		score -= min(0.5, float64(n-a.cfg.MaxLines)/float64(a.cfg.MaxLines))
		findings = append(findings, domain.Finding{
			Criterion: CriterionComplexity,
			Severity:  domain.SeverityWarning,
			Message:   fmt.Sprintf("%d lines exceeds limit of %d", n, a.cfg.MaxLines),
		})
	}
	score -= min(0.3, float64(long)/float64(n))

	nesting := max(maxDepth, maxIndent)
	if a.cfg.MaxNesting > 0 && nesting > a.cfg.MaxNesting {
		score -= min(0.4, 0.15*float64(nesting-a.cfg.MaxNesting))
		findings = append(findings, domain.Finding{
			Criterion: CriterionComplexity,
			Severity:  domain.SeverityWarning,
			Message:   fmt.Sprintf("nesting depth %d exceeds %d", nesting, a.cfg.MaxNesting),
		})
	}
	return round(clamp(score)), findings
}

func (a *CodeAssessor) dependencies(imports []string) (float64, []domain.Finding) {
	var findings []domain.Finding
	for _, imp := range imports {
		if matchesAny(imp, a.cfg.DependencyBlocklist) {
			findings = append(findings, domain.Finding{
				Criterion: CriterionDependencies,
				Severity:  domain.SeverityWarning,
				Message:   fmt.Sprintf("blocklisted dependency %q", imp),
			})
		}
	}
	return clamp(1 - 0.5*float64(len(findings))), findings
}

func stripFences(content string) []string {
	raw := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if fenceLine.MatchString(l) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// extractImports returns the distinct, normalised module names referenced by
// Python, JavaScript and Go import forms.
func extractImports(lines []string) []string {
	seen := make(map[string]bool)
	add := func(name string) {
		if name = normaliseImport(name); name != "" {
			seen[name] = true
		}
	}

	inGoBlock := false
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if inGoBlock {
			if t == ")" {
				inGoBlock = false
				continue
			}
			if m := goImportLine.FindStringSubmatch(t); m != nil {
				add(m[1])
			}
			continue
		}
		if t == "import (" {
			inGoBlock = true
			continue
		}
		if m := goImport.FindStringSubmatch(line); m != nil {
			add(m[1])
			continue
		}
		if m := pyFromImport.FindStringSubmatch(line); m != nil {
			add(m[1])
			continue
		}
		if m := jsImport.FindStringSubmatch(line); m != nil {
			add(m[1])
			continue
		}
		if m := pyImport.FindStringSubmatch(line); m != nil {
			add(m[1])
		}
		for _, m := range jsRequire.FindAllStringSubmatch(line, -1) {
			add(m[1])
		}
		for _, m := range jsDynImport.FindAllStringSubmatch(line, -1) {
			add(m[1])
		}
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normaliseImport(name string) string {
	name = strings.TrimPrefix(name, "node:")
	if name == "" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "/") {
		return ""
	}
	// Go paths are kept whole, e.g. "os/exec".
	if strings.Contains(name, "/") && !strings.HasPrefix(name, "@") {
		first := name[:strings.Index(name, "/")]
		if !strings.Contains(first, ".") && !isGoStdRoot(first) {
			return first
		}
		return name
	}
	// Scoped npm packages keep their scope.
	if strings.HasPrefix(name, "@") {
		parts := strings.SplitN(name, "/", 3)
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
		return name
	}
	// Python dotted modules collapse to the top-level package.
	if i := strings.Index(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

var goStdRoots = map[string]bool{
	"os": true, "net": true, "crypto": true, "encoding": true, "io": true,
	"path": true, "text": true, "html": true, "syscall": true, "runtime": true,
	"unsafe": true, "plugin": true, "debug": true, "go": true, "image": true,
	"math": true, "mime": true, "database": true, "hash": true, "container": true,
}

func isGoStdRoot(s string) bool { return goStdRoots[s] }

func matchesAny(imp string, list []string) bool {
	for _, l := range list {
		if imp == l || strings.HasPrefix(imp, l+"/") {
			return true
		}
	}
	return false
}

func isCommentLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "//") || strings.HasPrefix(t, "#") || strings.HasPrefix(t, "*") || strings.HasPrefix(t, "--")
}

// indentLevel counts leading tabs, or groups of four spaces.
func indentLevel(line string) int {
	tabs, spaces := 0, 0
	for _, r := range line {
		switch r {
		case '\t':
			tabs++
		case ' ':
			spaces++
		default:
			return tabs + spaces/4
		}
	}
	return 0
}

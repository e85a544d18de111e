// Package template renders pre-approved offline content for requests that no
// provider tier could serve.
package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/vietddude/zerofail/internal/core/domain"
)

// CriterionTemplate is the single criterion carried by a template score.
const CriterionTemplate = "template"

// DefaultNominalScore is reported for template content unless configured.
const DefaultNominalScore = 0.5

var builtin = map[string]string{
	string(domain.ClassProse): `Thank you for your request. We were unable to prepare a tailored response within the expected time, ` +
		`so this is a standard reply. A member of our team will follow up with complete details.` +
		`{{if .Priority}} As a {{.ServiceTier}} customer, your request has been prioritised for review.{{end}}`,
	string(domain.ClassCode): `// A generated implementation is not available right now.
// This placeholder compiles in most C-family languages and performs no work.
// Please retry later or contact support{{if .Priority}} through your {{.ServiceTier}} channel{{end}}.`,
	string(domain.ClassOther): `Your request has been received and will be answered shortly.` +
		`{{if .Priority}} ({{.ServiceTier}} support){{end}}`,
}

// Fallback renders class and service-tier specific templates. It performs
// no I/O and never fails once constructed.
type Fallback struct {
	templates map[string]*template.Template
	nominal   float64
}

type data struct {
	Class       domain.ContentClass
	ServiceTier domain.ServiceTier
	Priority    bool
}

// New parses the built-in bodies plus any overrides. Override keys are
// "<class>" or "<class>/<service tier>".
func New(overrides map[string]string, nominal float64) (*Fallback, error) {
	if nominal <= 0 || nominal > 1 {
		nominal = DefaultNominalScore
	}

	bodies := make(map[string]string, len(builtin)+len(overrides))
	for k, v := range builtin {
		bodies[k] = v
	}
	for k, v := range overrides {
		bodies[k] = v
	}

	f := &Fallback{
		templates: make(map[string]*template.Template, len(bodies)),
		nominal:   nominal,
	}
	for key, body := range bodies {
		t, err := template.New(key).Option("missingkey=zero").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse template %q: %w", key, err)
		}
		f.templates[key] = t
	}
	return f, nil
}

// Render returns the template content for the class and service tier. The
// most specific template wins: class/tier, then class, then other.
func (f *Fallback) Render(class domain.ContentClass, tier domain.ServiceTier) domain.Content {
	key, t := f.lookup(class, tier)

	var buf bytes.Buffer
	d := data{
		Class:       class,
		ServiceTier: tier,
		Priority:    tier != "" && tier != domain.ServiceStandard,
	}
	if err := t.Execute(&buf, d); err != nil {
		// bodies only reference fields of data
		buf.Reset()
		buf.WriteString(t.Root.String())
	}

	return domain.Content{
		Text:       strings.TrimSpace(buf.String()),
		Template:   true,
		TemplateID: key,
	}
}

// Score returns the nominal passing score attached to template content.
func (f *Fallback) Score() domain.QualityScore {
	s := domain.NewQualityScore(
		map[string]float64{CriterionTemplate: f.nominal},
		map[string]float64{CriterionTemplate: 1},
		nil,
	)
	s.Threshold = f.nominal
	s.Passed = true
	return s
}

func (f *Fallback) lookup(class domain.ContentClass, tier domain.ServiceTier) (string, *template.Template) {
	keys := []string{
		string(class) + "/" + string(tier),
		string(class),
		string(domain.ClassOther),
	}
	for _, k := range keys {
		if t, ok := f.templates[k]; ok {
			return k, t
		}
	}
	// builtin always contains "other"
	return string(domain.ClassOther), f.templates[string(domain.ClassOther)]
}

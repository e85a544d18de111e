package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentClass selects the quality assessor and the template set.
type ContentClass string

const (
	ClassProse ContentClass = "prose"
	ClassCode  ContentClass = "code"
	ClassOther ContentClass = "other"
)

// ParseContentClass maps free-form input to a known class. Unknown values fall back to other.
func ParseContentClass(s string) ContentClass {
	switch c := ContentClass(strings.ToLower(strings.TrimSpace(s))); c {
	case ClassProse, ClassCode:
		return c
	case "":
		return ClassProse
	default:
		return ClassOther
	}
}

// ServiceTier is the customer tier attached to a request, e.g. "standard" or "premium".
type ServiceTier string

const (
	ServiceStandard   ServiceTier = "standard"
	ServicePremium    ServiceTier = "premium"
	ServiceEnterprise ServiceTier = "enterprise"
)

// ParseServiceTier maps a name to a tier; unknown or empty names are standard.
func ParseServiceTier(s string) ServiceTier {
	switch t := ServiceTier(strings.ToLower(strings.TrimSpace(s))); t {
	case ServicePremium, ServiceEnterprise:
		return t
	default:
		return ServiceStandard
	}
}

// GenerationRequest is immutable once created.
type GenerationRequest struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	Topic       string       `json:"topic,omitempty"`
	Class       ContentClass `json:"class"`
	ServiceTier ServiceTier  `json:"service_tier"`
	Deadline    time.Time    `json:"deadline"`
}

// NewGenerationRequest builds a request with a fresh ID and an absolute deadline.
// A zero budget leaves the deadline unset so the pipeline default applies.
func NewGenerationRequest(content, topic string, class ContentClass, tier ServiceTier, budget time.Duration) GenerationRequest {
	if tier == "" {
		tier = ServiceStandard
	}
	if class == "" {
		class = ClassProse
	}
	req := GenerationRequest{
		ID:          uuid.NewString(),
		Content:     content,
		Topic:       topic,
		Class:       class,
		ServiceTier: tier,
	}
	if budget > 0 {
		req.Deadline = time.Now().Add(budget)
	}
	return req
}

// Content is what an adapter or the template fallback hands back.
type Content struct {
	Text       string `json:"text"`
	Model      string `json:"model,omitempty"`
	Template   bool   `json:"template,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	// ClaimedScore is a provider self-assessment. It is carried for logging only.
	ClaimedScore *float64 `json:"claimed_score,omitempty"`
}

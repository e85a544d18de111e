package delivery

import (
	"time"

	"github.com/vietddude/zerofail/internal/core/domain"
)

// Config holds SLA targets and escalation thresholds.
type Config struct {
	// SLA is the maximum end-to-end latency per service tier.
	SLA        map[domain.ServiceTier]time.Duration `yaml:"sla"`
	Escalation EscalationConfig                     `yaml:"escalation"`

	// Retention of persisted delivery records; 0 keeps them forever.
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// EscalationConfig holds the thresholds that raise signals.
type EscalationConfig struct {
	TemplateRate     float64       `yaml:"template_rate"`
	FailureRate      float64       `yaml:"failure_rate"`
	SLAViolationRate float64       `yaml:"sla_violation_rate"`
	MaxAvgLatency    time.Duration `yaml:"max_avg_latency"` // 0 = disabled
	MinSamples       int64         `yaml:"min_samples"`
	// Window the rates are computed over.
	Window        time.Duration `yaml:"window"`
	CheckInterval time.Duration `yaml:"check_interval"`
	Cooldown      time.Duration `yaml:"cooldown"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if len(c.SLA) == 0 {
		c.SLA = map[domain.ServiceTier]time.Duration{
			domain.ServiceStandard:   30 * time.Second,
			domain.ServicePremium:    15 * time.Second,
			domain.ServiceEnterprise: 10 * time.Second,
		}
	}
	if c.PruneInterval == 0 {
		c.PruneInterval = time.Hour
	}

	e := &c.Escalation
	if e.TemplateRate == 0 {
		e.TemplateRate = 0.05
	}
	if e.FailureRate == 0 {
		e.FailureRate = 0.25
	}
	if e.SLAViolationRate == 0 {
		e.SLAViolationRate = 0.10
	}
	if e.Window == 0 {
		e.Window = 15 * time.Minute
	}
	if e.MinSamples == 0 {
		e.MinSamples = 20
	}
	if e.CheckInterval == 0 {
		e.CheckInterval = time.Minute
	}
	if e.Cooldown == 0 {
		e.Cooldown = 10 * time.Minute
	}
}

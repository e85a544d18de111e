package config

import (
	"time"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/generation/compliance"
	"github.com/vietddude/zerofail/internal/generation/delivery"
	"github.com/vietddude/zerofail/internal/generation/quality"
	"github.com/vietddude/zerofail/internal/infra/eventbus"
	redisclient "github.com/vietddude/zerofail/internal/infra/redis"
	"github.com/vietddude/zerofail/internal/infra/storage/sqldb"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Pipeline   PipelineConfig     `yaml:"pipeline"`
	Providers  []ProviderConfig   `yaml:"providers"`
	Quality    quality.Config     `yaml:"quality"`
	Templates  TemplateConfig     `yaml:"templates"`
	Delivery   delivery.Config    `yaml:"delivery"`
	Compliance compliance.Config  `yaml:"compliance"`
	Redis      redisclient.Config `yaml:"redis"`
	Database   sqldb.Config       `yaml:"database"`
	NATS       eventbus.Config    `yaml:"nats"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
	// AllowedOrigin is echoed in CORS headers of the generate endpoint.
	AllowedOrigin string `yaml:"allowed_origin"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// PipelineConfig holds the ordered tier list and acceptance thresholds.
// It is read once at startup and never mutated afterwards.
type PipelineConfig struct {
	DefaultBudget time.Duration `yaml:"default_budget"`
	Backoff       BackoffConfig `yaml:"backoff"`
	Tiers         []TierConfig  `yaml:"tiers"`

	// Thresholds are per-class floors keyed by service tier, e.g.
	// thresholds.code.premium = 0.9. Prose and code tables are independent.
	Thresholds map[domain.ContentClass]map[domain.ServiceTier]float64 `yaml:"thresholds"`
}

// BackoffConfig mirrors backoff.Policy without the random source.
type BackoffConfig struct {
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
	Jitter    bool          `yaml:"jitter"`
}

// TierConfig describes one position in the failover order.
type TierConfig struct {
	Provider            string        `yaml:"provider"`
	PerAttemptTimeout   time.Duration `yaml:"per_attempt_timeout"`
	AcceptanceThreshold float64       `yaml:"acceptance_threshold"`
	MaxAttempts         int           `yaml:"max_attempts"`
}

// ProviderConfig holds settings for a generation provider.
type ProviderConfig struct {
	Name         string  `yaml:"name"`
	Kind         string  `yaml:"kind"` // anthropic, openai, grpc
	URL          string  `yaml:"url"`
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`

	// gRPC only: full method name of the unary generate call.
	Method string `yaml:"method"`

	// Anthropic only: route through AWS Bedrock.
	UseBedrock bool   `yaml:"use_bedrock"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"`

	// Consecutive failures before the provider is skipped for BreakerCooldown.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
}

// TemplateConfig overrides the built-in fallback bodies.
type TemplateConfig struct {
	NominalScore float64 `yaml:"nominal_score"`
	// Bodies are keyed by "<class>" or "<class>/<service tier>".
	Bodies map[string]string `yaml:"bodies"`
}

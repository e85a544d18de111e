package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables and applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.AllowedOrigin == "" {
		c.Server.AllowedOrigin = "*"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Pipeline.DefaultBudget == 0 {
		c.Pipeline.DefaultBudget = 60 * time.Second
	}
	if c.Pipeline.Backoff.BaseDelay == 0 {
		c.Pipeline.Backoff.BaseDelay = 500 * time.Millisecond
	}
	if c.Pipeline.Backoff.MaxDelay == 0 {
		c.Pipeline.Backoff.MaxDelay = 30 * time.Second
	}
	for i := range c.Pipeline.Tiers {
		t := &c.Pipeline.Tiers[i]
		if t.PerAttemptTimeout == 0 {
			t.PerAttemptTimeout = 20 * time.Second
		}
		if t.MaxAttempts == 0 {
			t.MaxAttempts = 2
		}
	}

	for i := range c.Providers {
		p := &c.Providers[i]
		if p.MaxTokens == 0 {
			p.MaxTokens = 4000
		}
		if p.BreakerThreshold == 0 {
			p.BreakerThreshold = 5
		}
		if p.BreakerCooldown == 0 {
			p.BreakerCooldown = 30 * time.Second
		}
	}

	if c.Templates.NominalScore == 0 {
		c.Templates.NominalScore = 0.5
	}

	c.Quality.ApplyDefaults()
	c.Delivery.ApplyDefaults()
}

// Validate checks the tier list and threshold tables. It fails fast so a
// misconfigured process never starts.
func (c *AppConfig) Validate() error {
	if len(c.Pipeline.Tiers) == 0 {
		return errors.New("pipeline.tiers must not be empty")
	}

	providers := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return errors.New("provider name is required")
		}
		if providers[p.Name] {
			return fmt.Errorf("duplicate provider %q", p.Name)
		}
		switch p.Kind {
		case "anthropic", "openai", "grpc":
		default:
			return fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
		}
		providers[p.Name] = true
	}

	for i, t := range c.Pipeline.Tiers {
		if !providers[t.Provider] {
			return fmt.Errorf("tier %d: unknown provider %q", i, t.Provider)
		}
		if t.AcceptanceThreshold < 0 || t.AcceptanceThreshold > 1 {
			return fmt.Errorf("tier %d: acceptance_threshold %.2f outside [0,1]", i, t.AcceptanceThreshold)
		}
		if t.PerAttemptTimeout < 0 {
			return fmt.Errorf("tier %d: per_attempt_timeout must be positive", i)
		}
		if t.MaxAttempts < 0 {
			return fmt.Errorf("tier %d: max_attempts must be positive", i)
		}
	}

	for class, byTier := range c.Pipeline.Thresholds {
		for tier, v := range byTier {
			if v < 0 || v > 1 {
				return fmt.Errorf("threshold %s/%s = %.2f outside [0,1]", class, tier, v)
			}
		}
	}

	if c.Pipeline.Backoff.BaseDelay > c.Pipeline.Backoff.MaxDelay {
		return errors.New("backoff.base_delay exceeds backoff.max_delay")
	}

	if err := c.Quality.Validate(); err != nil {
		return err
	}
	return c.Compliance.Validate()
}

// Provider returns the provider config with the given name.
func (c *AppConfig) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

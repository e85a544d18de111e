// Package provider implements generation provider adapters.
//
// This package contains:
//   - Adapter interface: the only surface the pipeline sees
//   - Error: transient/permanent failure classification
//   - AnthropicAdapter, OpenAIAdapter, GRPCAdapter: concrete transports
//   - Tracked: health accounting and circuit breaking around any adapter
//   - Registry: adapters built from configuration
package provider

import (
	"context"
	"time"

	"github.com/vietddude/zerofail/internal/core/domain"
)

// Adapter invokes one external generation provider. The per-attempt timeout
// is carried by ctx; implementations must pass ctx to their transport so a
// cancelled attempt releases its connection.
type Adapter interface {
	// Name returns the provider identifier (e.g., "claude", "gpt4")
	Name() string

	// Invoke sends the prompt and returns generated content or an error
	// that Classify can sort into transient or permanent.
	Invoke(ctx context.Context, prompt string) (domain.Content, error)
}

// BreakerState is the circuit breaker position of a tracked provider.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Name             string        `json:"name"`
	Available        bool          `json:"available"`
	Breaker          BreakerState  `json:"breaker"`
	Latency          time.Duration `json:"latency"`
	ErrorRate        float64       `json:"error_rate"`
	Requests         int           `json:"requests"`
	ConsecutiveFails int           `json:"consecutive_fails"`
	LastSuccessAt    time.Time     `json:"last_success_at"`
	LastFailureAt    time.Time     `json:"last_failure_at"`
	ThrottledUntil   time.Time     `json:"throttled_until,omitempty"`
}

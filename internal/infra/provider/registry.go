package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/vietddude/zerofail/internal/core/config"
)

// Registry owns the tracked adapters built from configuration.
type Registry struct {
	adapters map[string]*Tracked
	closers  []io.Closer
}

// NewRegistry returns an empty registry. Use Add to register adapters.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]*Tracked)}
}

// Build constructs an adapter per provider config, wrapped with health tracking.
func Build(ctx context.Context, cfgs []config.ProviderConfig) (*Registry, error) {
	r := NewRegistry()
	for _, cfg := range cfgs {
		a, err := newAdapter(ctx, cfg)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("provider %s: %w", cfg.Name, err)
		}
		r.Add(a, cfg.BreakerThreshold, cfg.BreakerCooldown)
		slog.Info("Provider registered", "name", cfg.Name, "kind", cfg.Kind, "model", cfg.Model)
	}
	return r, nil
}

func newAdapter(ctx context.Context, cfg config.ProviderConfig) (Adapter, error) {
	switch cfg.Kind {
	case "anthropic":
		return NewAnthropicAdapter(ctx, cfg)
	case "openai":
		return NewOpenAIAdapter(cfg), nil
	case "grpc":
		return NewGRPCAdapter(cfg)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}

// Add wraps and registers an adapter under its name.
func (r *Registry) Add(a Adapter, threshold int, cooldown time.Duration) *Tracked {
	t := NewTracked(a, threshold, cooldown)
	r.adapters[a.Name()] = t
	if c, ok := a.(io.Closer); ok {
		r.closers = append(r.closers, c)
	}
	return t
}

// Get returns the tracked adapter by name.
func (r *Registry) Get(name string) (*Tracked, bool) {
	t, ok := r.adapters[name]
	return t, ok
}

// Health returns the status of every provider, sorted by name.
func (r *Registry) Health() []HealthStatus {
	out := make([]HealthStatus, 0, len(r.adapters))
	for _, t := range r.adapters {
		out = append(out, t.Health())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close releases transport resources held by adapters.
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

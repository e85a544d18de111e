package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/infra/provider"
)

// ErrNoTiers is returned by New when the tier list is empty.
var ErrNoTiers = errors.New("pipeline: no tiers configured")

// Tier is one position in the failover order. Tiers are fixed at construction.
type Tier struct {
	Provider            provider.Adapter
	PerAttemptTimeout   time.Duration
	AcceptanceThreshold float64
	MaxAttempts         int
}

func (t Tier) validate(i int) error {
	if t.Provider == nil {
		return fmt.Errorf("tier %d: provider is nil", i)
	}
	if t.PerAttemptTimeout <= 0 {
		return fmt.Errorf("tier %d (%s): per-attempt timeout must be positive", i, t.Provider.Name())
	}
	if t.AcceptanceThreshold < 0 || t.AcceptanceThreshold > 1 {
		return fmt.Errorf("tier %d (%s): acceptance threshold %.2f outside [0,1]", i, t.Provider.Name(), t.AcceptanceThreshold)
	}
	if t.MaxAttempts < 1 {
		return fmt.Errorf("tier %d (%s): max attempts must be at least 1", i, t.Provider.Name())
	}
	return nil
}

// Thresholds are per-class acceptance floors keyed by service tier.
type Thresholds map[domain.ContentClass]map[domain.ServiceTier]float64

func (t Thresholds) validate() error {
	for class, byTier := range t {
		for tier, v := range byTier {
			if v < 0 || v > 1 {
				return fmt.Errorf("threshold %s/%s = %.2f outside [0,1]", class, tier, v)
			}
		}
	}
	return nil
}

// floor returns the configured floor for the request, or 0.
func (t Thresholds) floor(class domain.ContentClass, tier domain.ServiceTier) float64 {
	return t[class][tier]
}

package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/generation/delivery"
	"github.com/vietddude/zerofail/internal/generation/metrics"
	"github.com/vietddude/zerofail/internal/infra/provider"
)

// DeliveryStats exposes tracker counters and escalation checks.
type DeliveryStats interface {
	Snapshot() delivery.Snapshot
	CheckEscalation() []domain.EscalationSignal
}

// ProviderHealth exposes per-provider breaker state.
type ProviderHealth interface {
	Health() []provider.HealthStatus
}

// CriticalTemplateRate marks the service critical once at least this share of
// requests is served from templates.
const CriticalTemplateRate = 0.5

// Monitor aggregates health status from the tracker and providers.
type Monitor struct {
	stats     DeliveryStats
	providers ProviderHealth
	minAge    time.Duration
	now       func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor. Reports are cached for minAge.
func NewMonitor(stats DeliveryStats, providers ProviderHealth, minAge time.Duration) *Monitor {
	return &Monitor{
		stats:     stats,
		providers: providers,
		minAge:    minAge,
		now:       time.Now,
	}
}

// CheckHealth evaluates providers and delivery statistics.
//
// Critical: no provider can currently be called, or the template share has
// reached CriticalTemplateRate. Degraded: any provider unavailable or any
// escalation threshold exceeded.
func (m *Monitor) CheckHealth() HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < m.minAge {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Providers:    m.providers.Health(),
		Delivery:     m.stats.Snapshot(),
		Signals:      m.stats.CheckEscalation(),
		CheckedAt:    now,
	}

	available := 0
	for _, p := range report.Providers {
		if p.Available {
			available++
			metrics.ProviderAvailable.WithLabelValues(p.Name).Set(1)
		} else {
			metrics.ProviderAvailable.WithLabelValues(p.Name).Set(0)
			report.Reasons = append(report.Reasons, fmt.Sprintf("provider %s unavailable (breaker %s)", p.Name, p.Breaker))
		}
	}
	for _, s := range report.Signals {
		report.Reasons = append(report.Reasons, s.Message)
	}

	switch {
	case len(report.Providers) > 0 && available == 0:
		report.SystemStatus = StatusCritical
	case templateCritical(report.Signals):
		report.SystemStatus = StatusCritical
	case len(report.Reasons) > 0:
		report.SystemStatus = StatusDegraded
	}

	m.lastCheck = now
	m.lastReport = &report
	return report
}

func templateCritical(signals []domain.EscalationSignal) bool {
	for _, s := range signals {
		if s.Kind == domain.SignalTemplateRate && s.Value >= CriticalTemplateRate {
			return true
		}
	}
	return false
}

// Package health provides service health reporting and the HTTP surface.
package health

import (
	"time"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/generation/delivery"
	"github.com/vietddude/zerofail/internal/infra/provider"
)

// SystemStatus represents the overall health state of the service.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// HealthReport contains the full service health report.
type HealthReport struct {
	SystemStatus SystemStatus              `json:"system_status"`
	Reasons      []string                  `json:"reasons,omitempty"`
	Providers    []provider.HealthStatus   `json:"providers"`
	Delivery     delivery.Snapshot         `json:"delivery"`
	Signals      []domain.EscalationSignal `json:"signals,omitempty"`
	CheckedAt    time.Time                 `json:"checked_at"`
}

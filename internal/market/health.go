package market

import "time"

// HealthStatus is the aggregate condition of a component.
type HealthStatus string

const (
	// Healthy means the component is fully operational.
	Healthy HealthStatus = "healthy"
	// Degraded means the component works but some data is stale.
	Degraded HealthStatus = "degraded"
	// Unhealthy means the component has no usable data.
	Unhealthy HealthStatus = "unhealthy"
)

// ComponentHealth is a point-in-time health report for a component.
type ComponentHealth struct {
	Name        string         `json:"name"`
	Status      HealthStatus   `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
}

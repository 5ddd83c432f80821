// Package health probes the daemon's dependencies and guards the
// enhancement provider behind a circuit breaker.
package health

import (
	"context"
	"time"
)

// Overall health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Probe is one named dependency check. Critical dependencies take the
// whole service down when they fail; non-critical ones only degrade it.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
	// Circuit, when set, reports the breaker state alongside the probe
	// result.
	Circuit func() string
	// Rate, when set, reports the breaker's current error rate.
	Rate func() float64
}

// Dependency is a probe outcome inside a report.
type Dependency struct {
	Name     string        `json:"name"`
	Healthy  bool          `json:"healthy"`
	Critical bool          `json:"critical"`
	Detail   string        `json:"detail,omitempty"`
	Latency  time.Duration `json:"latency"`
	Circuit  string        `json:"circuit,omitempty"`
	// ErrorRate is the provider failure fraction over the breaker's
	// counting window. Only circuit-backed dependencies report it.
	ErrorRate float64 `json:"errorRate,omitempty"`
}

// Report is the aggregate health snapshot.
type Report struct {
	Status       string       `json:"status"`
	CheckedAt    time.Time    `json:"checkedAt"`
	Dependencies []Dependency `json:"dependencies"`
}

// Healthy reports whether the service should admit new work.
func (r Report) Healthy() bool {
	return r.Status != StatusUnhealthy
}

// aggregate applies the degradation rule: any critical failure or two
// non-critical failures is unhealthy, exactly one non-critical failure
// is degraded, otherwise healthy.
func aggregate(deps []Dependency) string {
	failures := 0
	for _, dep := range deps {
		if dep.Healthy {
			continue
		}
		if dep.Critical {
			return StatusUnhealthy
		}
		failures++
	}
	switch {
	case failures >= 2:
		return StatusUnhealthy
	case failures == 1:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

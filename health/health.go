// Package health collects health reports from enabled modules and
// aggregates them into readiness and overall health.
package health

import (
	"context"
	"fmt"
	"time"
)

// Status is the health of one module or of the whole runtime.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "healthy":
		*s = StatusHealthy
	case "degraded":
		*s = StatusDegraded
	case "unhealthy":
		*s = StatusUnhealthy
	case "unknown":
		*s = StatusUnknown
	default:
		return fmt.Errorf("unknown health status %q", text)
	}
	return nil
}

// Report is the health of one module component.
type Report struct {
	Module    string         `json:"module"`
	Component string         `json:"component,omitempty"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	CheckedAt time.Time      `json:"checkedAt"`
	Optional  bool           `json:"optional"`
	Details   map[string]any `json:"details,omitempty"`
}

// Provider is implemented by plugins that can check their own health. A
// plugin that does not implement it is reported healthy while it is active.
type Provider interface {
	HealthCheck(ctx context.Context) ([]Report, error)
}

// Aggregated is the result of one collection.
type Aggregated struct {
	// Readiness is the worst status of required modules.
	Readiness Status `json:"readiness"`

	// Health is the worst status of every module, optional ones included.
	Health Status `json:"health"`

	Reports     []Report  `json:"reports"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// worst orders healthy < degraded < unhealthy < unknown.
func worst(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusHealthy:
			return 0
		case StatusDegraded:
			return 1
		case StatusUnhealthy:
			return 2
		default:
			return 3
		}
	}
	if rank(a) >= rank(b) {
		return a
	}
	return b
}

package status

import (
	"time"

	"codeberg.org/modelrelay/relay/internal/cache"
	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/guard"
)

// CircuitStatus is one backend's circuit as shown to observers.
type CircuitStatus struct {
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
	HalfOpenCalls       int        `json:"half_open_calls,omitempty"`
}

// BackendStatus pairs a registry entry with its live circuit state.
type BackendStatus struct {
	ID             string              `json:"id"`
	Provider       string              `json:"provider"`
	Model          string              `json:"model"`
	TaskCategories []core.TaskCategory `json:"task_categories"`
	Priority       int                 `json:"priority"`
	Circuit        CircuitStatus       `json:"circuit"`
}

// BackendsResponse lists the registered backends in routing order.
type BackendsResponse struct {
	Backends []BackendStatus `json:"backends"`
}

// StatsResponse aggregates the operational counters.
type StatsResponse struct {
	Cache cache.StatsSnapshot `json:"cache"`
	Guard guard.StatsSnapshot `json:"guard"`
}

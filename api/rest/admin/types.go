package admin

import (
	"codeberg.org/modelrelay/relay/internal/core"
)

// InvalidateRequest selects cache entries to drop. At least one field must
// be set; when several are set an entry must match all of them.
type InvalidateRequest struct {
	Fingerprint  string `json:"fingerprint"`
	BackendID    string `json:"backend_id"`
	TaskCategory string `json:"task_category"`
}

// InvalidateResponse reports how many entries were dropped.
type InvalidateResponse struct {
	Invalidated int `json:"invalidated"`
}

// ResetResponse confirms a manual circuit reset.
type ResetResponse struct {
	BackendID string `json:"backend_id"`
	State     string `json:"state"`
}

// RegistryRequest replaces the backend registry at runtime. Dispatch limits
// are kept from the current snapshot.
type RegistryRequest struct {
	Backends []core.BackendDescriptor `json:"backends" binding:"required"`
}

// RegistryResponse reports the size of the published registry.
type RegistryResponse struct {
	Backends int `json:"backends"`
}

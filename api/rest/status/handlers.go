package status

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codeberg.org/modelrelay/relay/internal/cache"
	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/guard"
)

// Backends reports every registered backend in routing order, each paired
// with its current circuit state.
func Backends(provider *config.Provider, g *guard.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		registry := provider.Snapshot().Registry

		backends := make([]BackendStatus, 0, registry.Len())
		for _, desc := range registry.All() {
			backends = append(backends, BackendStatus{
				ID:             desc.ID,
				Provider:       desc.Provider,
				Model:          desc.Model,
				TaskCategories: desc.TaskCategories,
				Priority:       desc.Priority,
				Circuit:        circuitStatus(g.State(desc.ID)),
			})
		}

		c.JSON(http.StatusOK, BackendsResponse{Backends: backends})
	}
}

// Stats reports the cache and guard counters.
func Stats(store *cache.Tiered, g *guard.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, StatsResponse{
			Cache: store.Stats(),
			Guard: g.Stats(),
		})
	}
}

func circuitStatus(cs guard.CircuitState) CircuitStatus {
	status := CircuitStatus{
		State:               cs.State.String(),
		ConsecutiveFailures: cs.ConsecutiveFailures,
		HalfOpenCalls:       cs.HalfOpenCalls,
	}

	if !cs.OpenedAt.IsZero() {
		openedAt := cs.OpenedAt
		status.OpenedAt = &openedAt
	}

	return status
}

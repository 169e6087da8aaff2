package admin

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"codeberg.org/modelrelay/relay/internal/cache"
	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/errors"
	"codeberg.org/modelrelay/relay/internal/guard"
)

// InvalidateCache godoc
// @Summary Invalidate cached responses
// @Description Admin-only endpoint to drop cached responses matching a predicate across all tiers
// @Tags admin
// @Accept json
// @Produce json
// @Param request body InvalidateRequest true "Invalidation predicate"
// @Success 200 {object} InvalidateResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /api/v1/admin/cache/invalidate [post]
// @Security BearerAuth
func InvalidateCache(store *cache.Tiered) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InvalidateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		if req.TaskCategory != "" && !core.TaskCategory(req.TaskCategory).Valid() {
			errors.BadRequest(c, fmt.Sprintf("unknown task category %q", req.TaskCategory), nil)
			return
		}

		pred := cache.Predicate{
			Fingerprint:  req.Fingerprint,
			BackendID:    req.BackendID,
			TaskCategory: core.TaskCategory(req.TaskCategory),
		}

		if pred.Empty() {
			errors.BadRequest(c, "at least one of fingerprint, backend_id, task_category is required", nil)
			return
		}

		count, err := store.Invalidate(c.Request.Context(), pred)
		if err != nil {
			errors.InternalError(c, "failed to invalidate cache entries", err)
			return
		}

		c.JSON(http.StatusOK, InvalidateResponse{Invalidated: count})
	}
}

// ResetCircuit godoc
// @Summary Reset a backend circuit breaker
// @Description Admin-only endpoint to force one backend's circuit back to closed
// @Tags admin
// @Produce json
// @Param backend path string true "Backend ID"
// @Success 200 {object} ResetResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /api/v1/admin/circuits/{backend}/reset [post]
// @Security BearerAuth
func ResetCircuit(g *guard.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		backendID := c.Param("backend")
		if backendID == "" {
			errors.BadRequest(c, "backend id required", nil)
			return
		}

		if !g.Reset(backendID) {
			errors.NotFound(c, "backend")
			return
		}

		c.JSON(http.StatusOK, ResetResponse{
			BackendID: backendID,
			State:     guard.StateClosed.String(),
		})
	}
}

// SwapRegistry godoc
// @Summary Replace the backend registry
// @Description Admin-only endpoint to publish a replacement registry. In-flight requests keep the snapshot they started with.
// @Tags admin
// @Accept json
// @Produce json
// @Param request body RegistryRequest true "Replacement backend descriptors"
// @Success 200 {object} RegistryResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /api/v1/admin/registry [put]
// @Security BearerAuth
func SwapRegistry(provider *config.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegistryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		registry, err := core.NewRegistry(req.Backends)
		if err != nil {
			errors.BadRequest(c, "invalid registry", err)
			return
		}

		provider.Swap(registry, provider.Snapshot().Limits)

		c.JSON(http.StatusOK, RegistryResponse{Backends: registry.Len()})
	}
}

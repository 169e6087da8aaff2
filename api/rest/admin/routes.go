package admin

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/modelrelay/relay/internal/auth"
	"codeberg.org/modelrelay/relay/internal/cache"
	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/guard"
)

func RegisterRoutes(router *gin.RouterGroup, store *cache.Tiered, g *guard.Guard, provider *config.Provider) {
	admin := router.Group("/admin")
	admin.Use(auth.AdminAuthMiddleware())

	admin.POST("/cache/invalidate", InvalidateCache(store))
	admin.POST("/circuits/:backend/reset", ResetCircuit(g))
	admin.PUT("/registry", SwapRegistry(provider))
}

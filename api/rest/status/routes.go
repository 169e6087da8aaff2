package status

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/modelrelay/relay/internal/cache"
	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/guard"
)

func RegisterRoutes(router *gin.RouterGroup, provider *config.Provider, store *cache.Tiered, g *guard.Guard) {
	router.GET("/backends", Backends(provider, g))
	router.GET("/stats", Stats(store, g))
}

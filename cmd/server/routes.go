package main

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/modelrelay/relay/api/rest/admin"
	"codeberg.org/modelrelay/relay/api/rest/health"
	"codeberg.org/modelrelay/relay/api/rest/requests"
	"codeberg.org/modelrelay/relay/api/rest/status"
	"codeberg.org/modelrelay/relay/api/ws"
	"codeberg.org/modelrelay/relay/internal/logger"
)

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server) {
	router.Use(CORSMiddleware(server.config))

	router.GET("/health", health.Handler)
	router.GET("/ready", health.ReadyHandler(server.provider))

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(server.config))

	{
		v1.GET("/ping", health.PingHandler)

		requests.RegisterRoutes(v1, server.orch)
		status.RegisterRoutes(v1, server.provider, server.cache, server.guard)
		ws.RegisterRoutes(v1, server.hub)

		// admin routes stay unmounted without a signing secret
		if server.config.JWTSecret != "" {
			admin.RegisterRoutes(v1, server.cache, server.guard, server.provider)
		} else {
			logger.Warn("JWT_SECRET not set, admin routes unmounted")
		}
	}
}

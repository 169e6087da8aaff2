package ws

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/modelrelay/relay/internal/events"
)

func RegisterRoutes(router *gin.RouterGroup, hub *events.Hub) {
	router.GET("/events/ws", EventsHandler(hub))
}

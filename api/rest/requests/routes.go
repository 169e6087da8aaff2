package requests

import (
	"github.com/gin-gonic/gin"
)

// registers request dispatch routes
func RegisterRoutes(router *gin.RouterGroup, orch Processor) {
	router.POST("/requests", ProcessHandler(orch))
	router.POST("/requests/batch", BatchHandler(orch))
}

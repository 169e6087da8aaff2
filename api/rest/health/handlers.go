package health

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codeberg.org/modelrelay/relay/internal/config"
)

// returns the server health status
func Handler(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Status:  "healthy",
		Service: "relay",
		Version: "1.0.0",
	})
}

// reports readiness to dispatch; not ready until at least one backend is
// registered
func ReadyHandler(provider *config.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if provider.Snapshot().Registry.Len() == 0 {
			c.JSON(http.StatusServiceUnavailable, Response{
				Status:  "no backends registered",
				Service: "relay",
			})
			return
		}

		c.JSON(http.StatusOK, Response{
			Status:  "ready",
			Service: "relay",
		})
	}
}

// responds with pong for testing
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, PingResponse{
		Message: "pong",
	})
}

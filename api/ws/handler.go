package ws

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"codeberg.org/modelrelay/relay/internal/errors"
	"codeberg.org/modelrelay/relay/internal/events"
	"codeberg.org/modelrelay/relay/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// EventsHandler upgrades the connection and streams dispatch events to the
// peer until it disconnects or the hub shuts down.
func EventsHandler(hub *events.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, err := generateClientID()
		if err != nil {
			errors.InternalError(c, "failed to generate client id", err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.ErrorErr(err, "failed to upgrade connection",
				"ip", c.ClientIP(),
			)

			return
		}

		feed, cancel := hub.Subscribe()

		cl := &client{
			id:     clientID,
			conn:   conn,
			events: feed,
			cancel: cancel,
		}

		go cl.writePump()
		go cl.readPump()

		logger.Info("event feed connection established",
			"client_id", clientID,
			"ip", c.ClientIP(),
		)
	}
}

func allowedOrigins() []string {
	if envOrigins := os.Getenv("ALLOWED_ORIGINS"); envOrigins != "" {
		origins := strings.Split(envOrigins, ",")

		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}

		return origins
	}

	return []string{}
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	if origin == "" {
		// allow no origin header in development
		env := os.Getenv("ENVIRONMENT")

		if env != "production" {
			return true
		}

		logger.Warn("websocket connection with no origin header")
		return false
	}

	env := os.Getenv("ENVIRONMENT")
	if env != "production" {
		return true
	}

	// production: validate against allowed origins
	allowed := allowedOrigins()

	if len(allowed) == 0 {
		logger.Warn("websocket origin rejected - ALLOWED_ORIGINS not configured",
			"origin", origin,
		)
		return false
	}

	if slices.Contains(allowed, origin) {
		return true
	}

	logger.Warn("websocket origin rejected - not in allowed origins",
		"origin", origin,
		"allowed_origins", allowed,
	)

	return false
}

func generateClientID() (string, error) {
	bytes := make([]byte, 16)

	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	return hex.EncodeToString(bytes), nil
}

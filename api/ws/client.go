package ws

import (
	"encoding/json"
	"io"
	"time"

	"github.com/gorilla/websocket"

	"codeberg.org/modelrelay/relay/internal/events"
	"codeberg.org/modelrelay/relay/internal/logger"
)

// connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// maximum message size allowed from peer; the feed is one-way, so
	// inbound frames are control traffic only
	maxMessageSize = 1024
)

// client is one observer of the event feed. The feed is read-only from the
// peer's perspective; the read pump exists to service control frames and to
// notice the peer going away.
type client struct {
	id     string
	conn   *websocket.Conn
	events <-chan events.Event
	cancel func()
}

// drains inbound frames so pong handlers run and close frames are seen
func (c *client) readPump() {
	defer func() {
		c.cancel()
		c.conn.Close() //nolint:errcheck,gosec // G104: defer cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: websocket setup
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: pong handler
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error",
					"client_id", c.id,
					"error", err,
				)
			}

			return
		}
	}
}

// writes events from the subscription to the peer until the subscription
// closes or a write fails
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close() //nolint:errcheck,gosec // G104: defer cleanup
	}()

	for {
		select {
		case event, ok := <-c.events:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket timing

			if !ok {
				// hub shut down or subscription cancelled
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck,gosec // G104: close message
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			if err := c.writeEvent(w, event); err != nil {
				w.Close() //nolint:errcheck,gosec // G104: already failing
				return
			}

			// add queued events to the current websocket message
			n := len(c.events)

			for range n {
				queued, ok := <-c.events
				if !ok {
					break
				}

				w.Write([]byte{'\n'}) //nolint:errcheck,gosec // G104: websocket write

				if err := c.writeEvent(w, queued); err != nil {
					w.Close() //nolint:errcheck,gosec // G104: already failing
					return
				}
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket ping timing

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) writeEvent(w io.Writer, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = w.Write(data)

	return err
}

package events

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"journaltransporter/internal/auth"
	"journaltransporter/internal/logger"
)

// Credentials sent explicitly (basic auth, bearer token) come from a client, not a page,
// so any origin is accepted for them.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler streams import events to the connecting client until it disconnects.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)

		up := upgrader
		if auth.ViaCookie(c) {
			// nil falls back to gorilla's same-origin check
			up.CheckOrigin = nil
		}

		ws, err := up.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		hub.AddWS(ws)
		log.Debug("event subscriber connected", zap.String("transport", "websocket"))

		// incoming messages are ignored; reading detects the close
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.RemoveWS(ws)
		log.Debug("event subscriber disconnected", zap.String("transport", "websocket"))
	}
}

// StatsHandler reports subscriber counts.
func StatsHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.Stats())
	}
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chemora/batchup/api/notifyhub"
	"github.com/chemora/batchup/tool"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // OnlyAllowLocal middleware already restricts to localhost
	},
}

// HandleNotifyWS upgrades the request to WebSocket and registers the
// connection with the hub so it receives batch progress frames.
func HandleNotifyWS(hub *notifyhub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			tool.DefaultLogger.Errorf("Failed to upgrade notify websocket: %v", err)
			return
		}
		hub.Register(conn)
		tool.DefaultLogger.Debugf("Notify websocket client connected: %s", c.ClientIP())

		go func() {
			defer func() {
				hub.Unregister(conn)
				if err := conn.Close(); err != nil {
					tool.DefaultLogger.Debugf("Failed to close notify websocket: %v", err)
				}
			}()
			// drain reads so pings/closes are processed; clients never send data
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OnlyAllowLocal rejects any request not from loopback. The admin API can
// create sessions and read preview blobs, so it must never serve the LAN.
func OnlyAllowLocal(c *gin.Context) {
	if c.ClientIP() == "127.0.0.1" || c.ClientIP() == "::1" {
		c.Next()
		return
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
}

package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chemora/batchup/api/models"
	"github.com/chemora/batchup/tool"
)

// backendProbeTimeout bounds the reachability ping.
const backendProbeTimeout = 3 * time.Second

// Status reports liveness for the console UI.
// GET /api/admin/v1/status
func Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":  true,
		"sessions": models.SessionCount(),
	})
}

// BackendStatus pings the upload endpoint host and reports reachability, so
// the console can warn before a batch is even selected.
// GET /api/admin/v1/backend-status
func BackendStatus(c *gin.Context) {
	cfg := currentConfig()
	if cfg == nil {
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Server not configured"))
		return
	}
	rtt, err := tool.ProbeBackend(cfg.Endpoint, backendProbeTimeout)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"reachable": false,
			"error":     err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reachable": true,
		"rttMs":     rtt.Milliseconds(),
	})
}

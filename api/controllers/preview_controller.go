package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chemora/batchup/tool"
)

// GetPreview serves the locally-held preview blob of one item so the console
// can render the file before its remote copy exists.
// GET /api/admin/v1/sessions/:sessionId/preview/:previewId
func GetPreview(c *gin.Context) {
	session, ok := lookupSession(c)
	if !ok {
		return
	}
	previewID := c.Param("previewId")
	name, kind, data, ok := session.Previews().Get(previewID)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Preview not found or released"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	c.Data(http.StatusOK, kind, data)
}

package tool

import (
	"maps"

	"github.com/gin-gonic/gin"
)

// Response helpers mirroring the upload envelope vocabulary: every admin API
// answer carries a success flag, successful ones a data payload, failed ones
// an error message.

func FastReturnError(msg string) gin.H {
	return gin.H{
		"success": false,
		"error":   msg,
	}
}

func FastReturnSuccess() gin.H {
	return gin.H{
		"success": true,
	}
}

func FastReturnSuccessWithData(data any) gin.H {
	return gin.H{
		"success": true,
		"data":    data,
	}
}

func FastReturnErrorWithData(msg string, data map[string]any) gin.H {
	resp := gin.H{
		"success": false,
		"error":   msg,
	}
	maps.Copy(resp, data)
	return resp
}

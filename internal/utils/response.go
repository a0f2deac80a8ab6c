package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Success writes data as a 200 JSON body.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error writes {"error": msg} with the given status.
func Error(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"error": msg,
	})
}

// Abort is Error for middleware: later handlers are skipped.
func Abort(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{
		"error": msg,
	})
}

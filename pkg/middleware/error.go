package middleware

import (
	"errors"
	"net/http"

	"guarantee-controlplane/pkg/errutil"
	"guarantee-controlplane/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error pushed with c.Error as {"error": "..."}.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		log := logger.FromContext(c.Request.Context()).With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			status := be.Code.HTTPStatus()
			if status >= http.StatusInternalServerError {
				log.Error("request failed", zap.Error(be))
			}
			c.JSON(status, be.JSON())
			return
		}

		log.Error("unhandled error", zap.Error(last.Err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// Recovery turns panics into a 500 with the standard error body.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.FromContext(c.Request.Context()).Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}

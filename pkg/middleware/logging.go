package middleware

import (
	"time"

	"guarantee-controlplane/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}

		log := logger.FromContext(c.Request.Context())
		if status >= 500 {
			log.Warn("http request", fields...)
			return
		}
		log.Info("http request", fields...)
	}
}

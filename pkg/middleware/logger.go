package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openride/dispatch/pkg/logger"
	"go.uber.org/zap"
)

// RequestLogger logs HTTP requests
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		fields := []zap.Field{
			zap.String("service", serviceName),
			zap.Int("status", statusCode),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", latency),
		}

		switch {
		case statusCode >= 500:
			logger.WithContext(c.Request.Context()).Error("request failed", fields...)
		case statusCode >= 400:
			logger.WithContext(c.Request.Context()).Warn("request rejected", fields...)
		default:
			logger.WithContext(c.Request.Context()).Info("request completed", fields...)
		}
	}
}

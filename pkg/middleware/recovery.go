package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/logger"
	"go.uber.org/zap"
)

// Recovery converts panics into 500 responses without leaking details.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				common.ErrorResponse(c, http.StatusInternalServerError, "internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openride/dispatch/pkg/logger"
)

const correlationIDHeader = "X-Correlation-ID"

// CorrelationID attaches a correlation ID to every request, minting one when
// the caller did not send one.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(correlationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		ctx := logger.ContextWithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(correlationIDHeader, correlationID)

		c.Next()
	}
}

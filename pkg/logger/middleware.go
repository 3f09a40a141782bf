package logger

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDHeader carries the correlation ID between services.
const CorrelationIDHeader = "X-Correlation-ID"

// RequestIDMiddleware is a Gin middleware that puts a fresh request ID and a
// correlation ID into the request context. An incoming X-Correlation-ID is
// reused, otherwise the request ID doubles as the correlation ID. The
// correlation ID is echoed back in the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()

		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" || len(correlationID) > 128 {
			correlationID = requestID
		}

		ctx := context.WithValue(c.Request.Context(), RequestIDKey, requestID)
		ctx = ContextWithCorrelationID(ctx, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Header(CorrelationIDHeader, correlationID)
		c.Next()
	}
}

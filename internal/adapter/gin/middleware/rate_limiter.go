package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"user-records-service/internal/adapter/ratelimit"
	"user-records-service/pkg/logger"
)

// RateLimiter returns a Gin middleware for rate limiting per client IP and
// method using a token bucket. Redis errors let the request through.
func RateLimiter(limiter *ratelimit.Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Enabled() {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s:%s", c.Request.Method, c.ClientIP())

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.WithContext(c.Request.Context(), log).Warn("rate limiter redis error, allowing request",
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			cfg := limiter.Config()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": fmt.Sprintf("rate limit exceeded: %.2f requests/second (burst %d)", cfg.RequestsPerSecond, cfg.Burst),
			})
			return
		}

		c.Next()
	}
}

package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/civicdesk/backend/internal/ratelimit"
)

// RateLimit throttles by client IP within scope. A nil limiter disables it,
// and limiter failures let the request through.
func RateLimit(limiter ratelimit.Limiter, scope string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		d, err := limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP())
		if err != nil {
			logger.Warn().Err(err).Str("scope", scope).Str("request_id", GetRequestID(c)).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "rate limit exceeded",
					"details": gin.H{"retry_after": retry},
				},
			})
			return
		}
		c.Next()
	}
}

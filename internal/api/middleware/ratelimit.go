package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/code-arena/code-arena-backend/pkg/logger"
	"github.com/code-arena/code-arena-backend/pkg/ratelimit"
)

// KeyFunc extracts the rate limit subject from a request.
type KeyFunc func(*gin.Context) string

// DefaultKeyFunc uses the authenticated user when available, the client IP
// otherwise.
func DefaultKeyFunc(c *gin.Context) string {
	if userID := UserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// IPKeyFunc keys on client IP only, for pre-auth endpoints.
func IPKeyFunc(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// UserKeyFunc keys on the authenticated user only; requests without one are
// rejected.
func UserKeyFunc(c *gin.Context) string {
	if userID := UserID(c); userID != "" {
		return "user:" + userID
	}
	return ""
}

// RateLimit limits with a process-local token bucket: capacity burst, refill
// per second.
func RateLimit(capacity int, refillRate float64, keyFunc KeyFunc) gin.HandlerFunc {
	limiter := ratelimit.NewLimiter(capacity, refillRate)
	if keyFunc == nil {
		keyFunc = DefaultKeyFunc
	}

	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			c.Abort()
			return
		}

		if !limiter.Allow(key) {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RedisRateLimit limits across all server instances through the shared Redis
// bucket: limit requests per window per key. Redis failures fail open.
func RedisRateLimit(limiter *ratelimit.RedisLimiter, limit int, window time.Duration, keyFunc KeyFunc) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = DefaultKeyFunc
	}

	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			c.Abort()
			return
		}

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.Warn("Rate limit check failed, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": fmt.Sprintf("Too many requests. Limit: %d per %v", limit, window),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

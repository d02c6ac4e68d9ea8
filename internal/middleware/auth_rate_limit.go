package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewAuthRateLimitMiddleware creates a stricter rate limiting middleware for
// the login endpoint. It allows 10 requests per minute per IP address, versus
// 100/min for the general API tier.
func NewAuthRateLimitMiddleware() gin.HandlerFunc {
	rate := limiter.Rate{
		Period: 1 * time.Minute,
		Limit:  10,
	}

	// Create in-memory store
	store := memory.NewStore()

	// Create rate limiter instance
	instance := limiter.New(store, rate)

	// Create and return Gin middleware
	middleware := mgin.NewMiddleware(instance)

	return middleware
}

// NewAuthRateLimitMiddlewareWithConfig creates a rate limiting middleware with custom configuration
func NewAuthRateLimitMiddlewareWithConfig(limit int64, period time.Duration) gin.HandlerFunc {
	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}

	store := memory.NewStore()
	instance := limiter.New(store, rate)
	middleware := mgin.NewMiddleware(instance)

	return middleware
}

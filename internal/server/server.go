// Package server provides HTTP server setup and configuration.
package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/PoyoPoak/MS-PM-POC/internal/auth"
	"github.com/PoyoPoak/MS-PM-POC/internal/config"
	"github.com/PoyoPoak/MS-PM-POC/internal/handlers"
	"github.com/PoyoPoak/MS-PM-POC/internal/middleware"
	"github.com/PoyoPoak/MS-PM-POC/internal/repository"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("RequestID", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// NewRateLimitMiddleware creates a rate limiting middleware using ulule/limiter.
// It allows 100 requests per minute per IP address.
func NewRateLimitMiddleware() gin.HandlerFunc {
	rate := limiter.Rate{
		Period: 1 * time.Minute,
		Limit:  100,
	}

	store := memory.NewStore()
	instance := limiter.New(store, rate)

	return mgin.NewMiddleware(instance)
}

// Dependencies holds all dependencies needed to create a server
type Dependencies struct {
	Config        *config.Config
	TelemetryRepo repository.TelemetryRepository
	UserRepo      repository.UserRepository
}

// New creates a new Gin router with all routes configured
func New(deps *Dependencies) *gin.Engine {
	// Release mode keeps ANSI color codes out of the logs
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Content-Encoding", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(RequestIDMiddleware())
	router.Use(NewRateLimitMiddleware())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithDecompressFn(gzip.DefaultDecompressHandle)))

	jwtService := auth.NewJWTService(
		deps.Config.Auth.JWTSecret,
		deps.Config.Auth.JWTAccessTokenTTL,
	)

	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	authRateLimiter := middleware.NewAuthRateLimitMiddleware()

	telemetryHandler := handlers.NewTelemetryHandler(deps.TelemetryRepo)
	authHandler := handlers.NewAuthHandler(deps.UserRepo, jwtService)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthHandler)

		authGroup := v1.Group("/auth")
		authGroup.Use(authRateLimiter)
		{
			authGroup.POST("/login", authHandler.Login)
		}

		// Bulk telemetry ingest is superuser-only; the capability check
		// rejects the call before any payload processing.
		v1.POST("/telemetry/ingest", authMiddleware.RequireSuperuser(), telemetryHandler.HandleIngest)
	}

	return router
}

// Package middleware provides gin middleware for the telemetry service.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PoyoPoak/MS-PM-POC/internal/auth"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user's ID
	UserIDKey ContextKey = "user_id"

	// UserEmailKey is the context key for the authenticated user's email
	UserEmailKey ContextKey = "user_email"
)

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	jwtService *auth.JWTService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtService *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
	}
}

// RequireSuperuser returns a middleware that rejects the request before any
// processing unless it carries a valid token for an active superuser.
// Returns 401 Unauthorized for a missing or invalid token and 403 Forbidden
// for a valid token without the superuser capability.
func (m *AuthMiddleware) RequireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.extractAndValidateToken(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": err.Error(),
			})
			c.Abort()
			return
		}

		if !claims.IsSuperuser {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "superuser privileges required",
			})
			c.Abort()
			return
		}

		c.Set(string(UserIDKey), claims.UserID)
		c.Set(string(UserEmailKey), claims.Email)

		c.Next()
	}
}

// extractAndValidateToken extracts the JWT token from the request and validates it
func (m *AuthMiddleware) extractAndValidateToken(c *gin.Context) (*auth.Claims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, errors.New("missing authorization header")
	}

	// Check for Bearer token format
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errors.New("invalid authorization header format")
	}

	tokenString := parts[1]
	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return m.jwtService.ValidateToken(tokenString)
}

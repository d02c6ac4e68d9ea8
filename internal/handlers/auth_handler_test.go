package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/PoyoPoak/MS-PM-POC/internal/auth"
	"github.com/PoyoPoak/MS-PM-POC/internal/models"
	"github.com/PoyoPoak/MS-PM-POC/internal/repository"
)

func loginRouter(userRepo repository.UserRepository, jwtService *auth.JWTService) *gin.Engine {
	router := gin.New()
	router.POST("/api/v1/auth/login", NewAuthHandler(userRepo, jwtService).Login)
	return router
}

func postLogin(t *testing.T, router *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal login payload: %v", err)
	}

	req, err := http.NewRequest("POST", "/api/v1/auth/login", bytes.NewBuffer(payload))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", time.Hour)

	passwordHash, err := auth.HashPassword("correct-password")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	storedUser := &models.User{
		ID:           uuid.New(),
		Email:        "admin@example.com",
		PasswordHash: passwordHash,
		IsSuperuser:  true,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	newRepo := func(user *models.User) *repository.MockUserRepository {
		mockRepo := repository.NewMockUserRepository()
		mockRepo.GetByEmailFunc = func(_ context.Context, email string) (*models.User, error) {
			if user != nil && email == user.Email {
				return user, nil
			}
			return nil, nil
		}
		return mockRepo
	}

	t.Run("valid credentials issue a superuser token", func(t *testing.T) {
		router := loginRouter(newRepo(storedUser), jwtService)

		w := postLogin(t, router, LoginRequest{
			Email:    "Admin@Example.com", // normalized before lookup
			Password: "correct-password",
		})

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d (body: %s)", w.Code, w.Body.String())
		}

		var resp TokenResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if resp.TokenType != "bearer" {
			t.Errorf("token_type = %q, want bearer", resp.TokenType)
		}

		claims, err := jwtService.ValidateToken(resp.AccessToken)
		if err != nil {
			t.Fatalf("Issued token failed validation: %v", err)
		}
		if !claims.IsSuperuser {
			t.Error("Expected token to carry the superuser capability")
		}
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		router := loginRouter(newRepo(storedUser), jwtService)

		w := postLogin(t, router, LoginRequest{
			Email:    "admin@example.com",
			Password: "wrong-password",
		})

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401, got %d", w.Code)
		}
	})

	t.Run("unknown user is rejected with the same status", func(t *testing.T) {
		router := loginRouter(newRepo(nil), jwtService)

		w := postLogin(t, router, LoginRequest{
			Email:    "nobody@example.com",
			Password: "correct-password",
		})

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401, got %d", w.Code)
		}
	})

	t.Run("inactive user is rejected", func(t *testing.T) {
		inactive := *storedUser
		inactive.IsActive = false
		router := loginRouter(newRepo(&inactive), jwtService)

		w := postLogin(t, router, LoginRequest{
			Email:    "admin@example.com",
			Password: "correct-password",
		})

		if w.Code != http.StatusForbidden {
			t.Errorf("Expected status 403, got %d", w.Code)
		}
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		router := loginRouter(newRepo(storedUser), jwtService)

		w := postLogin(t, router, map[string]string{"email": "admin@example.com"})

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

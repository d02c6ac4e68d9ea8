package repository

import (
	"context"

	"github.com/PoyoPoak/MS-PM-POC/internal/models"
)

// UserRepository defines the interface for user data access. The pipeline
// only needs enough of it to bootstrap the first superuser and serve login.
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByEmail retrieves a user by their email address. Returns
	// (nil, nil) when no such user exists.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

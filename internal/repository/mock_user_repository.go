package repository

import (
	"context"

	"github.com/PoyoPoak/MS-PM-POC/internal/models"
)

// MockUserRepository is a mock implementation of UserRepository for testing
type MockUserRepository struct {
	CreateFunc     func(ctx context.Context, user *models.User) error
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
}

// NewMockUserRepository creates a new mock user repository with default implementations
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		CreateFunc: func(_ context.Context, _ *models.User) error {
			return nil
		},
		GetByEmailFunc: func(_ context.Context, _ string) (*models.User, error) {
			return nil, nil
		},
	}
}

// Create implements UserRepository.Create
func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.CreateFunc(ctx, user)
}

// GetByEmail implements UserRepository.GetByEmail
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.GetByEmailFunc(ctx, email)
}

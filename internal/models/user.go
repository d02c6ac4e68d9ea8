package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an operator account. The telemetry pipeline only needs
// enough of a user model to gate the ingest endpoint behind a superuser
// credential; full account management lives outside this service.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never expose in JSON
	IsSuperuser  bool      `json:"isSuperuser" db:"is_superuser"`
	IsActive     bool      `json:"isActive" db:"is_active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

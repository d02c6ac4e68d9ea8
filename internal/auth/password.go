package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrPasswordEmpty is returned when the password is empty
	ErrPasswordEmpty = errors.New("password cannot be empty")
	// ErrPasswordTooShort is returned when the password is too short
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	// ErrPasswordTooLong is returned when the password exceeds the bcrypt input limit
	ErrPasswordTooLong = errors.New("password must be at most 72 characters")
)

// HashPassword hashes a plaintext password using bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	switch {
	case len(password) == 0:
		return "", ErrPasswordEmpty
	case len(password) < 8:
		return "", ErrPasswordTooShort
	case len(password) > 72:
		// bcrypt truncates input beyond 72 bytes
		return "", ErrPasswordTooLong
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hashedBytes), nil
}

// VerifyPassword compares a plaintext password against a bcrypt hash.
func VerifyPassword(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

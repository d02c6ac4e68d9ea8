// Package config provides configuration management for the telemetry service.
package config

import (
	"os"
	"strings"
)

// GetSecret retrieves a secret with multiple fallback sources.
// Priority:
//  1. Direct environment variable (e.g., FIRST_SUPERUSER_PASSWORD)
//  2. File path from _FILE environment variable (e.g., FIRST_SUPERUSER_PASSWORD_FILE)
//  3. Default value
//
// This allows secrets to be provided via:
//   - Environment variables (e.g., JWT_SECRET=xxx)
//   - Docker secrets (e.g., FIRST_SUPERUSER_PASSWORD_FILE=/run/secrets/first_superuser_password)
func GetSecret(envVar, defaultValue string) string {
	// 1. Try direct environment variable
	if value := os.Getenv(envVar); value != "" {
		return value
	}

	// 2. Try file-based secret (for Docker secrets)
	if filePath := os.Getenv(envVar + "_FILE"); filePath != "" {
		if data, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	// 3. Return default value
	return defaultValue
}

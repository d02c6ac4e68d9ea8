// Package config provides configuration management for the telemetry service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Bootstrap BootstrapConfig
	Seed      SeedConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string
}

// AuthConfig holds authentication-related configuration
type AuthConfig struct {
	JWTSecret         string
	JWTAccessTokenTTL time.Duration
}

// BootstrapConfig holds first-superuser bootstrap configuration. The ingest
// endpoint is superuser-only, so a fresh deployment needs one account to
// exist before any telemetry can be accepted.
type BootstrapConfig struct {
	FirstSuperuserEmail    string
	FirstSuperuserPassword string
}

// SeedConfig holds the one-shot historical telemetry seed configuration.
// Seeding is off by default and must be explicitly enabled.
type SeedConfig struct {
	Enabled   bool
	CSVPath   string
	BatchSize int
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                   string
	Host                  string
	Port                  string
	Name                  string
	User                  string
	Password              string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			URL:                   os.Getenv("DATABASE_URL"),
			Host:                  getEnv("DB_HOST", "localhost"),
			Port:                  getEnv("DB_PORT", "5432"),
			Name:                  getEnv("DB_NAME", "telemetry_dev"),
			User:                  getEnv("DB_USER", "telemetry_user"),
			Password:              getEnv("DB_PASSWORD", "telemetry_pass"),
			SSLMode:               getEnv("DB_SSLMODE", "disable"),
			MaxConnections:        getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConnections:    getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnectionMaxLifetime: getEnvAsDuration("DB_CONNECTION_MAX_LIFETIME", "5m"),
		},
		Auth: AuthConfig{
			JWTSecret:         GetSecret("JWT_SECRET", "dev-secret-key-change-in-production"),
			JWTAccessTokenTTL: getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", "1h"),
		},
		Bootstrap: BootstrapConfig{
			FirstSuperuserEmail:    getEnv("FIRST_SUPERUSER_EMAIL", "admin@example.com"),
			FirstSuperuserPassword: GetSecret("FIRST_SUPERUSER_PASSWORD", ""),
		},
		Seed: SeedConfig{
			Enabled:   getEnvAsBool("SEED_PACEMAKER_DATA", false),
			CSVPath:   getEnv("SEED_PACEMAKER_DATA_CSV", "data/pacemaker_data_seed.csv"),
			BatchSize: getEnvAsInt("SEED_BATCH_SIZE", 5000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.Seed.BatchSize <= 0 {
		return errors.New("SEED_BATCH_SIZE must be > 0")
	}
	if c.Bootstrap.FirstSuperuserEmail == "" {
		return errors.New("FIRST_SUPERUSER_EMAIL cannot be empty")
	}
	return nil
}

// ConnectionString returns the database connection string
func (d *DatabaseConfig) ConnectionString() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean toggle. The accepted
// true spellings match the original deployment scripts: 1, true, yes, on.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if valueStr == "" {
		return defaultValue
	}
	switch valueStr {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// getEnvAsDuration gets an environment variable as a duration or returns a default value
func getEnvAsDuration(key, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		defaultDuration, _ := time.ParseDuration(defaultValue)
		return defaultDuration
	}
	return value
}

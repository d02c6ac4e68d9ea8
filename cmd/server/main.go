// Package main is the entry point for the pacemaker telemetry HTTP server.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/PoyoPoak/MS-PM-POC/internal/auth"
	"github.com/PoyoPoak/MS-PM-POC/internal/config"
	"github.com/PoyoPoak/MS-PM-POC/internal/database"
	"github.com/PoyoPoak/MS-PM-POC/internal/models"
	"github.com/PoyoPoak/MS-PM-POC/internal/repository"
	"github.com/PoyoPoak/MS-PM-POC/internal/seed"
	"github.com/PoyoPoak/MS-PM-POC/internal/server"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	log.Println("Successfully connected to database")

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	telemetryRepo := repository.NewPostgresTelemetryRepository(db)
	userRepo := repository.NewPostgresUserRepository(db)

	if err := bootstrapFirstSuperuser(ctx, userRepo, cfg); err != nil {
		log.Fatalf("Failed to bootstrap first superuser: %v", err)
	}

	// One-shot historical data seed, off unless SEED_PACEMAKER_DATA is set
	if _, err := seed.NewLoader(telemetryRepo, cfg.Seed).Run(ctx); err != nil {
		log.Fatalf("Failed to seed pacemaker telemetry: %v", err)
	}

	// Create server dependencies
	deps := &server.Dependencies{
		Config:        cfg,
		TelemetryRepo: telemetryRepo,
		UserRepo:      userRepo,
	}

	// Create and start the server
	srv := server.New(deps)

	log.Printf("Starting server on port %s", cfg.Server.Port)
	if err := srv.Run(":" + cfg.Server.Port); err != nil {
		log.Printf("Failed to start server: %v", err)
		panic(err) // Use panic instead of log.Fatalf to ensure defer runs
	}
}

// bootstrapFirstSuperuser creates the configured superuser account when it
// does not exist yet, so the ingest endpoint is reachable on a fresh
// deployment. An existing account is left untouched.
func bootstrapFirstSuperuser(ctx context.Context, userRepo repository.UserRepository, cfg *config.Config) error {
	existing, err := userRepo.GetByEmail(ctx, cfg.Bootstrap.FirstSuperuserEmail)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	if cfg.Bootstrap.FirstSuperuserPassword == "" {
		log.Println("FIRST_SUPERUSER_PASSWORD not set - skipping superuser bootstrap")
		return nil
	}

	hash, err := auth.HashPassword(cfg.Bootstrap.FirstSuperuserPassword)
	if err != nil {
		return err
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        cfg.Bootstrap.FirstSuperuserEmail,
		PasswordHash: hash,
		IsSuperuser:  true,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := userRepo.Create(ctx, user); err != nil {
		return err
	}

	log.Printf("Created first superuser %s", user.Email)
	return nil
}

// Study Social Platform Core
//
// This is the main entry point for the Study Social platform service.
// It serves the REST API and WebSocket chat hub for a student community:
// accounts and roles, study posts, study rooms, direct messages, and
// friend requests, backed by a single SQLite database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/studysocial/studysocial-core/migrations"

	"github.com/studysocial/studysocial-core/internal/api"
	"github.com/studysocial/studysocial-core/internal/audit"
	"github.com/studysocial/studysocial-core/internal/auth"
	"github.com/studysocial/studysocial-core/internal/infrastructure/config"
	"github.com/studysocial/studysocial-core/internal/infrastructure/database"
	"github.com/studysocial/studysocial-core/internal/infrastructure/logging"
	"github.com/studysocial/studysocial-core/internal/social"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// demoPassword is the shared password for demo accounts when sample-data
// seeding is enabled. Seeding is for local development only.
const demoPassword = "studytime"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Study Social core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration. A missing JWT secret fails here, before anything
	// touches the network or disk.
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	userRepo := auth.NewUserRepository(db.DB)
	postRepo := social.NewPostRepository(db.DB)
	roomRepo := social.NewRoomRepository(db.DB)
	messageRepo := social.NewMessageRepository(db.DB)
	friendRepo := social.NewFriendRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Seed the super admin on first boot. The generated password is logged
	// once; there is no hardcoded default.
	if _, seedErr := auth.SeedSuperAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding super admin: %w", seedErr)
	}

	// Optional sample data for local development
	if cfg.Demo.SeedSampleData {
		if seedErr := social.SeedSampleData(ctx, userRepo, postRepo, roomRepo, demoPassword, log.Logger); seedErr != nil {
			return fmt.Errorf("seeding sample data: %w", seedErr)
		}
	}

	// Authentication service
	authSvc := auth.NewService(userRepo, auth.Config{
		Secret:            cfg.Security.JWT.Secret,
		AccessTokenTTL:    cfg.Security.JWT.AccessTokenTTL,
		PasswordMinLength: cfg.Security.Password.MinLength,
	}, log.Logger)

	// API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		AuthService: authSvc,
		Users:       userRepo,
		Posts:       postRepo,
		Rooms:       roomRepo,
		Messages:    messageRepo,
		Friends:     friendRepo,
		AuditRepo:   auditRepo,
		DB:          db,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Study Social core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses STUDYSOCIAL_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("STUDYSOCIAL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

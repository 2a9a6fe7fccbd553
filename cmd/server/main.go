package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/avossberg/account-security/internal/audit"
	"github.com/avossberg/account-security/internal/config"
	"github.com/avossberg/account-security/internal/health"
	"github.com/avossberg/account-security/internal/logger"
	"github.com/avossberg/account-security/internal/metrics"
	appmw "github.com/avossberg/account-security/internal/middleware"
	"github.com/avossberg/account-security/internal/repository"
	"github.com/avossberg/account-security/internal/session"
	"github.com/avossberg/account-security/internal/twofa"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg := config.Load()
	appLogger := logger.New(logger.DefaultConfig())

	// Missing persistence is a startup-time error, not a per-call fallback
	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	sqlxDB, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to open sqlx connection: %v", err)
	}
	defer sqlxDB.Close()

	// Repositories
	credRepo := repository.NewCredentialRepository(dbPool)
	sessionRepo := repository.NewSessionRepository(dbPool)
	auditRepo := repository.NewAuditRepository(sqlxDB)
	attemptRepo := repository.NewLoginAttemptRepository(dbPool)

	// Services
	auditService := audit.NewService(auditRepo, attemptRepo, audit.Config{
		BruteForceWindow:      cfg.Security.BruteForceWindow,
		BruteForceMaxAttempts: cfg.Security.BruteForceMaxAttempts,
	}, appLogger)

	twofaService := twofa.NewService(credRepo, auditService, twofa.Config{
		Issuer:          cfg.Security.Issuer,
		TOTPPeriod:      cfg.Security.TOTPPeriod,
		TOTPWindow:      &cfg.Security.TOTPWindow,
		BackupCodeCount: cfg.Security.BackupCodeCount,
	}, appLogger)

	sessionService := session.NewService(sessionRepo, auditService, cfg.Security.SessionTTL, appLogger)

	// Handlers
	twofaHandler := twofa.NewHandler(twofaService)
	sessionHandler := session.NewHandler(sessionService)
	auditHandler := audit.NewHandler(auditService)
	healthHandler := health.NewHandler(dbPool, Version)

	// Rate limiter for code-bearing endpoints
	rateLimiter := appmw.NewRateLimiter(30, time.Minute)
	defer rateLimiter.Stop()

	// Router
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(appmw.StructuredLogger(appLogger))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Ready)
	r.Get("/health/live", healthHandler.Live)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		twofa.RegisterRoutes(r, twofaHandler, rateLimiter.Handler)
		session.RegisterRoutes(r, sessionHandler)
		audit.RegisterRoutes(r, auditHandler)
	})

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go runCleanup(cleanupCtx, sessionRepo, attemptRepo, cfg.Security.BruteForceWindow, appLogger)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server exited")
}

// runCleanup periodically removes expired sessions and login attempts
// that have aged out of the brute-force window. Housekeeping only; both
// are already invalid for reads whether or not deleted.
func runCleanup(ctx context.Context, sessions repository.SessionRepository, attempts repository.LoginAttemptRepository, attemptWindow time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if deleted, err := sessions.DeleteExpired(ctx); err != nil {
				logger.Warn("Failed to delete expired sessions", "error", err)
			} else if deleted > 0 {
				logger.Info("Deleted expired sessions", "count", deleted)
			}

			// Keep attempts for a few windows so recent history stays inspectable
			cutoff := time.Now().UTC().Add(-4 * attemptWindow)
			if deleted, err := attempts.DeleteBefore(ctx, cutoff); err != nil {
				logger.Warn("Failed to delete stale login attempts", "error", err)
			} else if deleted > 0 {
				logger.Info("Deleted stale login attempts", "count", deleted)
			}
		}
	}
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

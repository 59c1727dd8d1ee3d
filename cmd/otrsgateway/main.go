package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	auditpostgres "3tcapital/otrs_connector/internal/adapters/audit/postgres"
	healthhandler "3tcapital/otrs_connector/internal/adapters/http/health"
	sessionhandler "3tcapital/otrs_connector/internal/adapters/http/session"
	tickethandler "3tcapital/otrs_connector/internal/adapters/http/ticket"
	"3tcapital/otrs_connector/internal/adapters/otrs"
	apphealth "3tcapital/otrs_connector/internal/application/health"
	appticket "3tcapital/otrs_connector/internal/application/ticket"
	"3tcapital/otrs_connector/internal/core/audit"
	"3tcapital/otrs_connector/internal/infrastructure/config"
	"3tcapital/otrs_connector/internal/infrastructure/database"
	httpclient "3tcapital/otrs_connector/internal/infrastructure/http"
	"3tcapital/otrs_connector/internal/infrastructure/http/server"
	"3tcapital/otrs_connector/internal/infrastructure/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "service stopped: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.App.Name, cfg.Log.Level, cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqlDB := openDatabase(ctx, cfg, log)
	if sqlDB != nil {
		defer sqlDB.Close()
	}

	var auditRepo audit.Repository
	if sqlDB != nil && cfg.Audit.Enabled {
		auditRepo = auditpostgres.NewRepository(sqlDB, log)
	}
	log.Info("Audit trail configuration",
		"audit_enabled_config", cfg.Audit.Enabled,
		"database_connected", sqlDB != nil,
		"audit_active", auditRepo != nil,
		"max_body_size", cfg.Audit.MaxBodySize,
	)

	traced := httpclient.NewTracedClient(httpclient.TracedClientConfig{
		Timeout:         cfg.OTRS.ReadTimeout,
		AuditEnabled:    cfg.Audit.Enabled,
		LogRequestBody:  cfg.Audit.LogRequestBody,
		LogResponseBody: cfg.Audit.LogResponseBody,
		MaxBodySize:     cfg.Audit.MaxBodySize,
		MaxConnsPerHost: cfg.OTRS.MaxConcurrentRequests,
	}, log, auditRepo, "otrs")
	// Pending audit writes finish before the database closes.
	defer traced.Wait()

	sessions, err := otrs.NewSessionManager(otrs.SessionConfig{
		BaseURL:          cfg.OTRS.BaseURL,
		Login:            cfg.OTRS.Login,
		Password:         cfg.OTRS.Password,
		ReadTimeout:      cfg.OTRS.ReadTimeout,
		SessionTTL:       cfg.OTRS.SessionTTL,
		SessionID:        cfg.OTRS.SessionID,
		SessionCreatedAt: cfg.OTRS.SessionCreatedAt,
		AuthRetries:      cfg.OTRS.AuthRetries,
	}, traced, log)
	if err != nil {
		return fmt.Errorf("create OTRS session manager: %w", err)
	}

	otrsClient := otrs.NewClient(otrs.ClientConfig{
		BaseURL:               cfg.OTRS.BaseURL,
		MaxConcurrentRequests: cfg.OTRS.MaxConcurrentRequests,
		RateLimitRPS:          cfg.OTRS.RateLimitRPS,
	}, sessions, traced, log)
	log.Info("OTRS connector configured",
		"base_url", cfg.OTRS.BaseURL,
		"session_ttl", cfg.OTRS.SessionTTL,
		"read_timeout", cfg.OTRS.ReadTimeout,
		"max_concurrent_requests", cfg.OTRS.MaxConcurrentRequests,
		"rate_limit_rps", cfg.OTRS.RateLimitRPS,
	)

	healthOpts := []apphealth.Option{apphealth.WithSession(otrsClient)}
	if sqlDB != nil {
		healthOpts = append(healthOpts, apphealth.WithDatabase(sqlDB))
	}
	healthService := apphealth.NewService(apphealth.Metadata{
		Service:     cfg.App.Name,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
	}, healthOpts...)

	ticketService := appticket.NewService(otrsClient, cfg.OTRS.ClosedStateID, log)

	srv, err := server.New(server.Options{
		Config:         cfg,
		Logger:         log,
		HealthHandler:  http.HandlerFunc(healthhandler.NewHandler(healthService).Status),
		TicketHandler:  tickethandler.NewHandler(ticketService, log),
		SessionHandler: sessionhandler.NewHandler(otrsClient, log),
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer srv.Close()

	log.Info("Starting HTTP server", "port", cfg.HTTP.Port)
	return srv.Run(ctx)
}

// openDatabase connects the audit database when configured. Failure only disables auditing.
func openDatabase(ctx context.Context, cfg config.AppConfig, log *slog.Logger) *sql.DB {
	if !cfg.Database.Enabled() {
		log.Info("Database not configured, audit trail will be disabled")
		return nil
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.Warn("Failed to connect to database, audit trail will be disabled",
			"error", err,
			"host", cfg.Database.Host,
			"database", cfg.Database.Database,
			"user", cfg.Database.User,
			"password_set", cfg.Database.Password != "",
		)
		return nil
	}
	log.Info("Database connection established", "database", cfg.Database.Database)

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(ctx, db, log); err != nil {
			log.Warn("Failed to run migrations, audit trail will be disabled", "error", err)
			db.Close()
			return nil
		}
	}
	return db
}

// Package main runs the workflow automation engine: the REST API, the
// webhook gatekeeper, and the background runner.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/flowdesk/automation_layer/internal/app"
	"github.com/flowdesk/automation_layer/internal/app/httpapi"
	"github.com/flowdesk/automation_layer/internal/app/storage/postgres"
	"github.com/flowdesk/automation_layer/internal/app/storage/redisstore"
	"github.com/flowdesk/automation_layer/internal/config"
	"github.com/flowdesk/automation_layer/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	stores := app.Stores{}
	var db *sql.DB
	if cfg.Database.DSN != "" {
		db, err = openDatabase(cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if err := postgres.Migrate(db); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		pg := postgres.New(db)
		stores = app.Stores{
			Workflows:        pg,
			Versions:         pg,
			Executions:       pg,
			Clients:          pg,
			Tasks:            pg,
			Notes:            pg,
			Communications:   pg,
			Notifications:    pg,
			DocumentRequests: pg,
		}
		log.Info("PostgreSQL storage configured")
	} else {
		log.Warn("DATABASE_DSN not set; using in-memory storage")
	}

	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		replays, err := redisstore.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer replays.Close()
		stores.Replays = replays
		log.Info("Redis replay store configured")
	} else {
		log.Warn("REDIS_ADDR not set; using in-memory replay store")
	}

	application, err := app.New(stores, app.Options{
		WebhookTolerance:   cfg.Webhook.TimestampTolerance,
		WebhookReplayTTL:   cfg.Webhook.ReplayTTL,
		RunnerWakeInterval: cfg.Runner.WakeInterval,
	}, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	mux := httpapi.NewHandler(application.Workflows, application.CRM, log, httpapi.Options{
		WebhookRate:  cfg.Server.RateLimit,
		WebhookBurst: cfg.Server.RateLimitBurst,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("Application shutdown error")
	}
	return nil
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sheetfill/internal/audit"
	"github.com/JonMunkholm/sheetfill/internal/config"
	"github.com/JonMunkholm/sheetfill/internal/core"
	"github.com/JonMunkholm/sheetfill/internal/logging"
	"github.com/JonMunkholm/sheetfill/internal/metrics"
	"github.com/JonMunkholm/sheetfill/internal/sheet"
	"github.com/JonMunkholm/sheetfill/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"audit_backend", cfg.Audit.Backend,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"session_idle_ttl", cfg.Session.IdleTTL,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()
	store, err := audit.Open(ctx, audit.Options{
		Backend:    cfg.Audit.Backend,
		SQLitePath: cfg.Audit.SQLitePath,
		Postgres: audit.PostgresConfig{
			URL:             cfg.Audit.DatabaseURL,
			MaxConns:        cfg.Audit.MaxConns,
			MinConns:        cfg.Audit.MinConns,
			MaxConnLifetime: cfg.Audit.MaxConnLifetime,
			MaxConnIdleTime: cfg.Audit.MaxConnIdleTime,
		},
	})
	if err != nil {
		return fmt.Errorf("open %s audit store: %w", cfg.Audit.Backend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("audit store close failed", "error", err)
		}
	}()
	slog.Info("audit store ready", "backend", cfg.Audit.Backend)

	m := metrics.New()
	service := core.NewService(sheet.New(cfg.Upload.MaxFileSize), store, m, core.Options{
		MaxConcurrentDecodes: cfg.Upload.MaxConcurrent,
		MaxDecodeWait:        cfg.Upload.MaxWaitTime,
		DecodeTimeout:        cfg.Upload.Timeout,
		MaxSessions:          cfg.Session.MaxSessions,
	})

	server := web.NewServer(service, cfg, m.Handler())

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	go service.StartSessionSweeper(jobCtx, core.SweepConfig{
		IdleTTL:            cfg.Session.IdleTTL,
		Interval:           cfg.Session.SweepInterval,
		AuditRetentionDays: cfg.Audit.RetentionDays,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight decodes finish before the listener goes away.
		if st := service.LimiterStatus(); st.Active > 0 {
			slog.Info("waiting for decodes to complete", "active", st.Active)
			if err := service.WaitForDecodes(shutdownCtx); err != nil {
				slog.Warn("decodes did not complete in time", "error", err)
			} else {
				slog.Info("all decodes completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	slog.Info("server stopped")
	return nil
}

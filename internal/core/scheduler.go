package core

// scheduler.go runs background maintenance for the Service.
//
// Each sweep:
//  1. Discards sessions idle longer than the idle TTL
//  2. Purges audit entries older than the retention period
//
// The sweeper is long-running and stops when its context is cancelled. A
// failed purge is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// SweepConfig configures the session sweeper. Zero values use defaults.
type SweepConfig struct {
	IdleTTL            time.Duration // default: 2h
	Interval           time.Duration // default: 5m
	AuditRetentionDays int           // 0 keeps audit entries forever
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.IdleTTL <= 0 {
		c.IdleTTL = 2 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	return c
}

// StartSessionSweeper sweeps immediately, then every cfg.Interval, until ctx
// is cancelled. Run it in its own goroutine.
func (s *Service) StartSessionSweeper(ctx context.Context, cfg SweepConfig) {
	cfg = cfg.withDefaults()
	slog.Info("session sweeper started",
		"idle_ttl", cfg.IdleTTL,
		"interval", cfg.Interval,
		"audit_retention_days", cfg.AuditRetentionDays,
	)

	s.Sweep(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx, cfg)
		}
	}
}

// Sweep performs one expire + purge cycle.
func (s *Service) Sweep(ctx context.Context, cfg SweepConfig) {
	cfg = cfg.withDefaults()
	start := s.now()

	if n := s.ExpireIdle(ctx, start.Add(-cfg.IdleTTL)); n > 0 {
		slog.Info("expired idle sessions", "sessions_expired", n)
	}

	if cfg.AuditRetentionDays > 0 {
		cutoff := start.AddDate(0, 0, -cfg.AuditRetentionDays)
		purged, err := s.PurgeAudit(ctx, cutoff)
		if err != nil {
			slog.Error("audit purge failed", "error", err)
		} else if purged > 0 {
			slog.Info("purged old audit entries", "entries_purged", purged)
		}
	}

	slog.Debug("sweep completed", "duration_ms", time.Since(start).Milliseconds())
}

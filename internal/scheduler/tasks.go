// ABOUTME: Wires the concrete maintenance tasks onto the scheduler
// ABOUTME: Heartbeat liveness scan, strength decay, trust decay, inbox retention

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clawnet/claw-gateway/internal/inbox"
	"github.com/clawnet/claw-gateway/internal/relationship"
	"github.com/clawnet/claw-gateway/internal/store"
	"github.com/clawnet/claw-gateway/internal/trust"
)

// MaintenanceConfig controls the maintenance schedules.
type MaintenanceConfig struct {
	// HeartbeatInterval is how often the liveness scan runs.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout marks a claw stale when last_seen is older than this.
	HeartbeatTimeout time.Duration
	// DecayInterval is how often relationship strength decays one step.
	DecayInterval time.Duration
	// TrustDecayCron schedules the quality-score decay, normally monthly.
	TrustDecayCron string
	// CleanupCron schedules inbox retention, normally nightly.
	CleanupCron string
	// InboxRetention is how long acked inbox entries are kept.
	InboxRetention time.Duration
}

// DefaultMaintenanceConfig returns the production schedule: hourly liveness
// scans, daily decay, monthly trust decay, nightly cleanup.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		HeartbeatInterval: time.Hour,
		HeartbeatTimeout:  24 * time.Hour,
		DecayInterval:     24 * time.Hour,
		TrustDecayCron:    "0 0 1 * *",
		CleanupCron:       "0 3 * * *",
		InboxRetention:    30 * 24 * time.Hour,
	}
}

// RegisterMaintenance registers the standard maintenance tasks. Each task is
// independent; a failure in one never affects the others.
func RegisterMaintenance(s *Scheduler, cfg MaintenanceConfig, claws store.ClawStore, rel *relationship.Engine, tr *trust.Engine, pipeline *inbox.Pipeline, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "maintenance")

	if err := s.Every("heartbeat-monitor", cfg.HeartbeatInterval, func(ctx context.Context) error {
		return scanStaleClaws(ctx, claws, cfg.HeartbeatTimeout, log)
	}); err != nil {
		return err
	}

	if err := s.Every("relationship-decay", cfg.DecayInterval, func(ctx context.Context) error {
		n, err := rel.DecayAll(ctx)
		if err != nil {
			return err
		}
		log.Info("relationship decay applied", "updated", n)
		return nil
	}); err != nil {
		return err
	}

	if err := s.Cron("trust-decay", cfg.TrustDecayCron, func(ctx context.Context) error {
		n, err := tr.DecayAllQ(ctx, trust.QDecayRate, "")
		if err != nil {
			return err
		}
		log.Info("trust quality decay applied", "updated", n)
		return nil
	}); err != nil {
		return err
	}

	if err := s.Cron("inbox-cleanup", cfg.CleanupCron, func(ctx context.Context) error {
		n, err := pipeline.PurgeAcked(ctx, cfg.InboxRetention)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("inbox retention purged entries", "purged", n)
		}
		return nil
	}); err != nil {
		return err
	}

	return nil
}

// scanStaleClaws logs claws whose last heartbeat is older than the timeout.
// Staleness is advisory: nothing is deleted, the log line is the signal.
func scanStaleClaws(ctx context.Context, claws store.ClawStore, timeout time.Duration, log *slog.Logger) error {
	all, err := claws.ListClaws(ctx, 0)
	if err != nil {
		return fmt.Errorf("listing claws: %w", err)
	}

	cutoff := time.Now().UTC().Add(-timeout)
	stale := 0
	for _, c := range all {
		if c.LastSeenAt == nil || c.LastSeenAt.Before(cutoff) {
			stale++
			log.Warn("claw heartbeat stale", "claw_id", c.ID, "last_seen", c.LastSeenAt)
		}
	}
	if stale > 0 {
		log.Info("liveness scan complete", "total", len(all), "stale", stale)
	}
	return nil
}

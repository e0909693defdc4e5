package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// AttemptPruner removes login attempts past their audit retention
type AttemptPruner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// LockoutPruner flips expired lockouts inactive and removes old rows
type LockoutPruner interface {
	DeactivateExpired(ctx context.Context) (int64, error)
	DeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionPruner deactivates expired sessions and removes old rows
type SessionPruner interface {
	DeactivateExpired(ctx context.Context) (int64, error)
	DeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertPruner removes alerts older than the retention cutoff
type AlertPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reaper runs the scheduled maintenance sweep: expired login attempts,
// lapsed lockouts, expired sessions, and stale alerts. Expiry itself is
// lazy (reads compare timestamps); the reaper only keeps table growth
// bounded, so a missed run costs disk, not correctness.
type Reaper struct {
	attempts  AttemptPruner
	lockouts  LockoutPruner
	sessions  SessionPruner
	alerts    AlertPruner
	retention time.Duration
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewReaper creates a new Reaper. retention bounds how long inactive
// lockout/session rows and alerts are kept for audit.
func NewReaper(
	attempts AttemptPruner,
	lockouts LockoutPruner,
	sessions SessionPruner,
	alerts AlertPruner,
	retention time.Duration,
	logger *slog.Logger,
) *Reaper {
	return &Reaper{
		attempts:  attempts,
		lockouts:  lockouts,
		sessions:  sessions,
		alerts:    alerts,
		retention: retention,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:    logger,
	}
}

// Start schedules the sweep and runs one immediately
func (r *Reaper) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.sweep); err != nil {
		return err
	}

	go r.sweep()
	r.cron.Start()
	r.logger.Info("reaper started", slog.String("schedule", schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (r *Reaper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("reaper stopped")
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-r.retention)

	r.prune(ctx, "login_attempts", func() (int64, error) {
		return r.attempts.DeleteExpired(ctx)
	})
	r.prune(ctx, "lockouts_deactivated", func() (int64, error) {
		return r.lockouts.DeactivateExpired(ctx)
	})
	r.prune(ctx, "lockouts_deleted", func() (int64, error) {
		return r.lockouts.DeleteInactiveOlderThan(ctx, cutoff)
	})
	r.prune(ctx, "sessions_deactivated", func() (int64, error) {
		return r.sessions.DeactivateExpired(ctx)
	})
	r.prune(ctx, "sessions_deleted", func() (int64, error) {
		return r.sessions.DeleteInactiveOlderThan(ctx, cutoff)
	})
	r.prune(ctx, "alerts_deleted", func() (int64, error) {
		return r.alerts.DeleteOlderThan(ctx, cutoff)
	})
}

func (r *Reaper) prune(ctx context.Context, name string, fn func() (int64, error)) {
	if ctx.Err() != nil {
		return
	}

	rows, err := fn()
	if err != nil {
		r.logger.Error("reaper step failed", slog.String("step", name), slog.Any("error", err))
		return
	}
	if rows > 0 {
		r.logger.Info("reaper step completed", slog.String("step", name), slog.Int64("rows", rows))
	}
}

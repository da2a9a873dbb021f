package cache

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Janitor sweeps expired rows on a cron schedule so the cache file does not
// grow without bound between restarts.
type Janitor struct {
	store    *Store
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewJanitor(store *Store, schedule string, logger *slog.Logger) *Janitor {
	if schedule == "" {
		schedule = "@every 1h"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{store: store, schedule: schedule, logger: logger}
}

// Start runs the sweep schedule until ctx is cancelled. One sweep runs
// immediately at startup.
func (j *Janitor) Start(ctx context.Context) error {
	j.sweep(ctx)

	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.schedule, func() { j.sweep(ctx) }); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("cache janitor started", "schedule", j.schedule)

	<-ctx.Done()
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
	j.logger.Info("cache janitor stopped")
	return nil
}

func (j *Janitor) sweep(ctx context.Context) {
	removed, err := j.store.DeleteExpired(ctx)
	if err != nil {
		j.logger.Warn("cache sweep failed", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("cache sweep removed expired entries", "count", removed)
	}
}

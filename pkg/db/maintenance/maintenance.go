package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner removes expired cache rows.
type Pruner interface {
	PruneCache(olderThan time.Duration) (int64, error)
}

// Run executes all maintenance tasks once. Failures are logged, never fatal.
func Run(ctx context.Context, p Pruner, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := p.PruneCache(ttl)
	if err != nil {
		slog.Error("Cache pruning failed", "error", err)
		return nil
	}
	slog.Info("Cache pruning completed", "removed", n, "ttl", ttl)
	return nil
}

// Scheduler runs maintenance on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
}

// Start runs maintenance once and then on every tick of schedule
// (standard cron syntax or descriptors such as "@every 1h").
func Start(ctx context.Context, p Pruner, schedule string, ttl time.Duration) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := Run(ctx, p, ttl); err != nil {
			slog.Debug("Maintenance skipped", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	slog.Info("Starting database maintenance...", "schedule", schedule)
	_ = Run(ctx, p, ttl)

	c.Start()
	return &Scheduler{cron: c}, nil
}

// Stop stops the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

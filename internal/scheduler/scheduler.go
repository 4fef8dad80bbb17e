// Package scheduler runs HealthMate's periodic housekeeping on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultSweepSchedule is how often idle sessions are swept.
	DefaultSweepSchedule = "@every 10m"
	// DefaultPurgeSchedule is how often old inbound message IDs are forgotten.
	DefaultPurgeSchedule = "@daily"
	// DefaultInboundRetention is how long inbound message IDs are kept for dedup.
	DefaultInboundRetention = 7 * 24 * time.Hour
	// purgeTimeout bounds one purge query.
	purgeTimeout = time.Minute
)

// Sweeper removes sessions idle for longer than ttl and returns how many it removed.
type Sweeper interface {
	SweepIdle(ttl time.Duration) int
}

// Purger deletes inbound message IDs received before cutoff.
type Purger interface {
	PurgeInbound(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
// Expressions use the standard 5 fields or a descriptor such as "@every 10m" or "@hourly".
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	if _, err := s.cron.AddFunc(expr, task); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// AddSweep runs sweeper.SweepIdle(ttl) on expr.
func (s *Scheduler) AddSweep(expr string, sweeper Sweeper, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("sweep ttl must be positive, got %s", ttl)
	}
	err := s.AddJob(expr, func() {
		removed := sweeper.SweepIdle(ttl)
		slog.Debug("Scheduler.sweep: idle sessions swept", "removed", removed, "ttl", ttl)
	})
	if err != nil {
		return err
	}
	slog.Info("Scheduler.AddSweep: idle session sweep scheduled", "schedule", expr, "ttl", ttl)
	return nil
}

// AddPurge forgets inbound message IDs older than retention on expr.
func (s *Scheduler) AddPurge(expr string, purger Purger, retention time.Duration) error {
	if retention <= 0 {
		return fmt.Errorf("purge retention must be positive, got %s", retention)
	}
	return s.AddJob(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		n, err := purger.PurgeInbound(ctx, time.Now().Add(-retention))
		if err != nil {
			slog.Error("Scheduler.purge: failed to purge inbound messages", "error", err)
			return
		}
		slog.Debug("Scheduler.purge: inbound messages purged", "removed", n, "retention", retention)
	})
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

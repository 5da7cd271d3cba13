// Package sweep runs the periodic maintenance pass: auto-snoozing stale
// overdue reminders and pruning finished jobs.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/sprout"
	"github.com/harms-haus/memoriae/internal/garden/storage"
)

// Config controls sweep cadence, the overdue grace window, and retention.
type Config struct {
	Interval time.Duration
	// OverdueGrace is how long a reminder may sit overdue before the sweep
	// snoozes it on the owner's behalf.
	OverdueGrace  time.Duration
	SnoozeMinutes int
	DoneRetention time.Duration
	DeadRetention time.Duration
}

const (
	defaultInterval      = time.Minute
	defaultOverdueGrace  = 30 * time.Minute
	defaultSnoozeMinutes = 60
	defaultDoneRetention = 24 * time.Hour
	defaultDeadRetention = 7 * 24 * time.Hour
)

func (c Config) normalized() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.OverdueGrace <= 0 {
		c.OverdueGrace = defaultOverdueGrace
	}
	if c.SnoozeMinutes <= 0 {
		c.SnoozeMinutes = defaultSnoozeMinutes
	}
	if c.DoneRetention <= 0 {
		c.DoneRetention = defaultDoneRetention
	}
	if c.DeadRetention <= 0 {
		c.DeadRetention = defaultDeadRetention
	}
	return c
}

// ReminderSource lists due reminders and applies snoozes.
type ReminderSource interface {
	DueReminders(ctx context.Context, ownerID string, cutoff time.Time) ([]sprout.DueReminder, error)
	SnoozeReminder(ctx context.Context, sproutID, ownerID string, minutes int) error
}

// JobPruner removes finished jobs past their retention windows.
type JobPruner interface {
	PruneJobs(ctx context.Context, doneBefore, deadBefore time.Time) (int64, error)
}

// Sweeper is the periodic maintenance loop.
type Sweeper struct {
	owners    storage.OwnerStore
	reminders ReminderSource
	jobs      JobPruner
	cfg       Config
	clock     func() time.Time
	running   atomic.Bool
}

// New builds a sweeper.
func New(owners storage.OwnerStore, reminders ReminderSource, jobs JobPruner, cfg Config) *Sweeper {
	return &Sweeper{
		owners:    owners,
		reminders: reminders,
		jobs:      jobs,
		cfg:       cfg.normalized(),
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until the context is canceled. A tick that fires while the
// previous pass is still working is dropped rather than stacked.
func (s *Sweeper) Run(ctx context.Context) error {
	if s == nil || s.owners == nil {
		return errors.New("sweep owner source is not configured")
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.running.CompareAndSwap(false, true) {
				continue
			}
			if err := s.Sweep(ctx); err != nil {
				log.Printf("sweep: %v", err)
			}
			s.running.Store(false)
		}
	}
}

// Sweep runs one maintenance pass. Per-owner failures are collected so one
// broken log never starves the remaining owners.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.clock()

	var errs []error
	owners, err := s.owners.ListOwners(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("list owners: %w", err))
	}
	for _, ownerID := range owners {
		if err := s.sweepOwner(ctx, ownerID, now); err != nil {
			errs = append(errs, fmt.Errorf("owner %s: %w", ownerID, err))
		}
	}

	if s.jobs != nil {
		removed, err := s.jobs.PruneJobs(ctx, now.Add(-s.cfg.DoneRetention), now.Add(-s.cfg.DeadRetention))
		if err != nil {
			errs = append(errs, fmt.Errorf("prune jobs: %w", err))
		} else if removed > 0 {
			log.Printf("sweep: pruned %d finished jobs", removed)
		}
	}
	return errors.Join(errs...)
}

func (s *Sweeper) sweepOwner(ctx context.Context, ownerID string, now time.Time) error {
	if s.reminders == nil {
		return nil
	}
	// Only reminders overdue past the grace window are touched.
	due, err := s.reminders.DueReminders(ctx, ownerID, now.Add(-s.cfg.OverdueGrace))
	if err != nil {
		return err
	}

	var errs []error
	for _, reminder := range due {
		if !s.shouldAutoSnooze(reminder, now) {
			continue
		}
		if err := s.reminders.SnoozeReminder(ctx, reminder.Sprout.ID, ownerID, s.cfg.SnoozeMinutes); err != nil {
			errs = append(errs, fmt.Errorf("snooze reminder %s: %w", reminder.Sprout.ID, err))
			continue
		}
		log.Printf("sweep: snoozed overdue reminder %s for %d minutes", reminder.Sprout.ID, s.cfg.SnoozeMinutes)
	}
	return errors.Join(errs...)
}

// shouldAutoSnooze inspects the reminder's last transaction before acting.
// A log that was written to within the grace window, whatever the cause,
// is left alone so sweep output never feeds the next sweep's input.
func (s *Sweeper) shouldAutoSnooze(reminder sprout.DueReminder, now time.Time) bool {
	last, ok := reminder.State.LastTransaction()
	if !ok {
		return false
	}
	if last.Type == sprout.TxReminderDismissed {
		return false
	}
	return now.Sub(last.CreatedAt) >= s.cfg.OverdueGrace
}

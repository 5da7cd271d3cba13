// Package app assembles the garden services behind one façade and owns the
// runtime that hosts the background loops.
package app

import (
	"context"
	"log"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/category"
	"github.com/harms-haus/memoriae/internal/garden/dispatch"
	"github.com/harms-haus/memoriae/internal/garden/seed"
	"github.com/harms-haus/memoriae/internal/garden/sprout"
	"github.com/harms-haus/memoriae/internal/garden/storage"
)

// Garden is the use-case façade over seeds, sprouts, categories, and the
// automation queue.
type Garden struct {
	seeds      *seed.Service
	sprouts    *sprout.Service
	categories *category.Service
	dispatcher *dispatch.Dispatcher
	store      storage.Store
	clock      func() time.Time
}

// NewGarden wires the façade. The dispatcher may be nil when no queue is
// hosted (e.g. read-only tooling).
func NewGarden(
	seeds *seed.Service,
	sprouts *sprout.Service,
	categories *category.Service,
	dispatcher *dispatch.Dispatcher,
	store storage.Store,
) *Garden {
	return &Garden{
		seeds:      seeds,
		sprouts:    sprouts,
		categories: categories,
		dispatcher: dispatcher,
		store:      store,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSeed persists a seed and fans one background job per enabled
// automation. The fan-out is best-effort: enqueue failures are logged and
// the created seed is returned regardless.
func (g *Garden) CreateSeed(ctx context.Context, ownerID, content string) (seed.Seed, error) {
	created, err := g.seeds.Create(ctx, seed.CreateInput{OwnerID: ownerID, Content: content})
	if err != nil {
		return seed.Seed{}, err
	}
	if g.dispatcher != nil {
		if _, err := g.dispatcher.EnqueueAllEnabledFor(ctx, created.ID, created.OwnerID); err != nil {
			log.Printf("garden: fan out automations for seed %s: %v", created.ID, err)
		}
	}
	return created, nil
}

// Seed returns one seed record.
func (g *Garden) Seed(ctx context.Context, seedID, ownerID string) (seed.Seed, error) {
	return g.seeds.Get(ctx, seedID, ownerID)
}

// SeedState folds a seed's event log into its current derived state.
func (g *Garden) SeedState(ctx context.Context, seedID, ownerID string) (seed.State, error) {
	return g.seeds.State(ctx, seedID, ownerID)
}

// AppendSeedEvent appends one user-authored event to a seed's log.
func (g *Garden) AppendSeedEvent(ctx context.Context, input seed.AppendEventInput) (seed.Event, error) {
	return g.seeds.AppendEvent(ctx, input)
}

// SetSeedEventEnabled toggles one event's participation in state folds.
func (g *Garden) SetSeedEventEnabled(ctx context.Context, eventID string, enabled bool) error {
	return g.seeds.SetEventEnabled(ctx, eventID, enabled)
}

// CreateReminder attaches a reminder sprout to a seed.
func (g *Garden) CreateReminder(ctx context.Context, input sprout.CreateReminderInput) (sprout.Sprout, error) {
	return g.sprouts.CreateReminder(ctx, input)
}

// Reminder folds one reminder's transaction log into its current state.
func (g *Garden) Reminder(ctx context.Context, sproutID, ownerID string) (sprout.ReminderState, error) {
	return g.sprouts.Reminder(ctx, sproutID, ownerID)
}

// EditReminder changes a reminder's due time and/or message.
func (g *Garden) EditReminder(ctx context.Context, input sprout.EditReminderInput) error {
	return g.sprouts.EditReminder(ctx, input)
}

// SnoozeReminder pushes a reminder's due time forward.
func (g *Garden) SnoozeReminder(ctx context.Context, sproutID, ownerID string, minutes int) error {
	return g.sprouts.SnoozeReminder(ctx, sproutID, ownerID, minutes)
}

// DismissReminder terminates a reminder.
func (g *Garden) DismissReminder(ctx context.Context, sproutID, ownerID string) error {
	return g.sprouts.DismissReminder(ctx, sproutID, ownerID)
}

// DueReminders returns the owner's undismissed reminders due by the cutoff.
func (g *Garden) DueReminders(ctx context.Context, ownerID string, cutoff time.Time) ([]sprout.DueReminder, error) {
	return g.sprouts.DueReminders(ctx, ownerID, cutoff)
}

// CreateMusing attaches an idea-prompt sprout to a seed.
func (g *Garden) CreateMusing(ctx context.Context, input sprout.CreateMusingInput) (sprout.Sprout, error) {
	return g.sprouts.CreateMusing(ctx, input)
}

// DismissMusing marks a musing dismissed.
func (g *Garden) DismissMusing(ctx context.Context, sproutID, ownerID string) error {
	return g.sprouts.DismissMusing(ctx, sproutID, ownerID)
}

// EnsureCategory creates a category path if missing.
func (g *Garden) EnsureCategory(ctx context.Context, ownerID, path string) (category.Category, error) {
	return g.categories.Ensure(ctx, ownerID, path)
}

// RenameCategory rewrites the last segment of a category path.
func (g *Garden) RenameCategory(ctx context.Context, ownerID, path, newName string) error {
	return g.categories.Rename(ctx, ownerID, path, newName)
}

// MoveCategory reparents a category path.
func (g *Garden) MoveCategory(ctx context.Context, ownerID, path, newParent string) error {
	return g.categories.Move(ctx, ownerID, path, newParent)
}

// RemoveCategory deletes a category path and its descendants.
func (g *Garden) RemoveCategory(ctx context.Context, ownerID, path string) error {
	return g.categories.Remove(ctx, ownerID, path)
}

// ListCategories returns the owner's category tree as sorted paths.
func (g *Garden) ListCategories(ctx context.Context, ownerID string) ([]category.Category, error) {
	return g.store.ListCategories(ctx, ownerID)
}

// ManualRun enqueues a high-priority run of one automation against one seed.
// It executes independently of any pending automatic job for the same pair.
func (g *Garden) ManualRun(ctx context.Context, seedID, automationID, ownerID string) (dispatch.Job, error) {
	if g.dispatcher == nil {
		return dispatch.Job{}, dispatch.ErrStoreNotConfigured
	}
	return g.dispatcher.Enqueue(ctx, dispatch.EnqueueInput{
		SeedID:       seedID,
		AutomationID: automationID,
		OwnerID:      ownerID,
		Manual:       true,
	})
}

// QueueSummary reports job queue depth for inspection.
func (g *Garden) QueueSummary(ctx context.Context) (dispatch.Summary, error) {
	return g.store.JobSummary(ctx)
}

// SetModelCredential stores one owner's model execution configuration.
func (g *Garden) SetModelCredential(ctx context.Context, c storage.Credential) error {
	now := g.clock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return g.store.PutModelCredential(ctx, c)
}

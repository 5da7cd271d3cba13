package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/harms-haus/memoriae/internal/garden/sprout"
	"github.com/harms-haus/memoriae/internal/garden/storage"
)

// ApplyAutomationBatch persists one automation run's output atomically:
// either every event, reminder, and musing lands or none does.
func (s *Store) ApplyAutomationBatch(ctx context.Context, batch storage.AutomationBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if batch.Empty() {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin automation batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := appendSeedEventsTx(ctx, tx, batch.Events); err != nil {
		return err
	}

	const insertSproutSQL = `
INSERT INTO sprouts (id, seed_id, owner_id, kind, created_at)
VALUES (?, ?, ?, ?, ?)
`
	for _, reminder := range batch.Reminders {
		if strings.TrimSpace(reminder.Sprout.ID) == "" {
			return fmt.Errorf("reminder sprout id is required")
		}
		if _, err := tx.ExecContext(
			ctx,
			insertSproutSQL,
			reminder.Sprout.ID,
			reminder.Sprout.SeedID,
			reminder.Sprout.OwnerID,
			string(reminder.Sprout.Kind),
			toMillis(reminder.Sprout.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert reminder sprout %s: %w", reminder.Sprout.ID, err)
		}
		if err := appendTransactionsTx(ctx, tx, []sprout.Transaction{reminder.Transaction}); err != nil {
			return err
		}
	}

	const insertMusingSQL = `
INSERT INTO musings (sprout_id, body, dismissed, dismissed_at)
VALUES (?, ?, 0, 0)
`
	for _, musing := range batch.Musings {
		if strings.TrimSpace(musing.Sprout.ID) == "" {
			return fmt.Errorf("musing sprout id is required")
		}
		if _, err := tx.ExecContext(
			ctx,
			insertSproutSQL,
			musing.Sprout.ID,
			musing.Sprout.SeedID,
			musing.Sprout.OwnerID,
			string(musing.Sprout.Kind),
			toMillis(musing.Sprout.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert musing sprout %s: %w", musing.Sprout.ID, err)
		}
		if _, err := tx.ExecContext(
			ctx,
			insertMusingSQL,
			musing.Musing.SproutID,
			musing.Musing.Text,
		); err != nil {
			return fmt.Errorf("insert musing %s: %w", musing.Musing.SproutID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit automation batch: %w", err)
	}
	return nil
}

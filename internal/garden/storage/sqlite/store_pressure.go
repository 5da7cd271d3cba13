package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/automation"
)

// AddPressure adds a non-negative delta to one (seed, automation)
// accumulator and returns the new total, clamped to the pressure ceiling.
func (s *Store) AddPressure(ctx context.Context, seedID, automationID string, delta int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	if delta < 0 {
		return 0, fmt.Errorf("pressure delta must be non-negative")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin add pressure: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(
		ctx,
		`SELECT pressure FROM automation_pressure WHERE seed_id = ? AND automation_id = ?`,
		seedID,
		automationID,
	).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read pressure: %w", err)
	}

	total := current + delta
	if total > automation.MaxPressure {
		total = automation.MaxPressure
	}
	const upsertPressureSQL = `
INSERT INTO automation_pressure (seed_id, automation_id, pressure, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(seed_id, automation_id) DO UPDATE SET
    pressure = excluded.pressure,
    updated_at = excluded.updated_at
`
	if _, err := tx.ExecContext(
		ctx,
		upsertPressureSQL,
		seedID,
		automationID,
		total,
		toMillis(time.Now()),
	); err != nil {
		return 0, fmt.Errorf("write pressure: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit add pressure: %w", err)
	}
	return total, nil
}

// ResetPressure zeroes one accumulator. Resetting a missing row is a no-op.
func (s *Store) ResetPressure(ctx context.Context, seedID, automationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	if _, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE automation_pressure
		 SET pressure = 0, updated_at = ?
		 WHERE seed_id = ? AND automation_id = ?`,
		toMillis(time.Now()),
		seedID,
		automationID,
	); err != nil {
		return fmt.Errorf("reset pressure: %w", err)
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/harms-haus/memoriae/internal/garden/seed"
)

// PutSeed inserts or updates one seed record.
func (s *Store) PutSeed(ctx context.Context, record seed.Seed) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	record.OwnerID = strings.TrimSpace(record.OwnerID)
	if record.ID == "" {
		return fmt.Errorf("seed id is required")
	}
	if record.OwnerID == "" {
		return fmt.Errorf("owner id is required")
	}

	const putSeedSQL = `
INSERT INTO seeds (id, owner_id, content, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET content = excluded.content
`
	if _, err := s.sqlDB.ExecContext(
		ctx,
		putSeedSQL,
		record.ID,
		record.OwnerID,
		record.Content,
		toMillis(record.CreatedAt),
	); err != nil {
		return fmt.Errorf("put seed: %w", err)
	}
	return nil
}

// GetSeed loads one seed scoped to its owner.
func (s *Store) GetSeed(ctx context.Context, seedID, ownerID string) (seed.Seed, error) {
	if err := ctx.Err(); err != nil {
		return seed.Seed{}, err
	}
	if err := s.ready(); err != nil {
		return seed.Seed{}, err
	}

	var (
		record    seed.Seed
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, owner_id, content, created_at
		 FROM seeds
		 WHERE id = ? AND owner_id = ?`,
		seedID,
		ownerID,
	).Scan(&record.ID, &record.OwnerID, &record.Content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return seed.Seed{}, seed.ErrNotFound
	}
	if err != nil {
		return seed.Seed{}, fmt.Errorf("get seed: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

// ListSeedsByOwner returns an owner's seeds in creation order.
func (s *Store) ListSeedsByOwner(ctx context.Context, ownerID string) ([]seed.Seed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, owner_id, content, created_at
		 FROM seeds
		 WHERE owner_id = ?
		 ORDER BY created_at ASC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list seeds: %w", err)
	}
	defer rows.Close()

	var seeds []seed.Seed
	for rows.Next() {
		var (
			record    seed.Seed
			createdAt int64
		)
		if err := rows.Scan(&record.ID, &record.OwnerID, &record.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan seed: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		seeds = append(seeds, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seeds: %w", err)
	}
	return seeds, nil
}

// ListOwners returns every owner with at least one seed.
func (s *Store) ListOwners(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT DISTINCT owner_id FROM seeds ORDER BY owner_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var ownerID string
		if err := rows.Scan(&ownerID); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, ownerID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}
	return owners, nil
}

// ListSeedEvents returns a seed's full event log in insertion order,
// disabled events included.
func (s *Store) ListSeedEvents(ctx context.Context, seedID string) ([]seed.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT seq, id, seed_id, type, payload, enabled, automation_id, created_at
		 FROM seed_events
		 WHERE seed_id = ?
		 ORDER BY seq ASC`,
		seedID,
	)
	if err != nil {
		return nil, fmt.Errorf("list seed events: %w", err)
	}
	defer rows.Close()

	var events []seed.Event
	for rows.Next() {
		event, err := scanSeedEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seed events: %w", err)
	}
	return events, nil
}

func scanSeedEvent(rows *sql.Rows) (seed.Event, error) {
	var (
		event     seed.Event
		eventType string
		payload   string
		enabled   int64
		createdAt int64
	)
	if err := rows.Scan(
		&event.Seq,
		&event.ID,
		&event.SeedID,
		&eventType,
		&payload,
		&enabled,
		&event.AutomationID,
		&createdAt,
	); err != nil {
		return seed.Event{}, fmt.Errorf("scan seed event: %w", err)
	}
	event.Type = seed.OpType(eventType)
	event.PayloadJSON = []byte(payload)
	event.Enabled = enabled != 0
	event.CreatedAt = fromMillis(createdAt)
	return event, nil
}

// AppendSeedEvents appends events to their logs in one transaction. The
// store assigns each event's insertion sequence.
func (s *Store) AppendSeedEvents(ctx context.Context, events []seed.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append seed events: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := appendSeedEventsTx(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append seed events: %w", err)
	}
	return nil
}

func appendSeedEventsTx(ctx context.Context, tx *sql.Tx, events []seed.Event) error {
	const insertEventSQL = `
INSERT INTO seed_events (id, seed_id, type, payload, enabled, automation_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`
	for _, event := range events {
		if strings.TrimSpace(event.ID) == "" {
			return fmt.Errorf("event id is required")
		}
		if strings.TrimSpace(event.SeedID) == "" {
			return fmt.Errorf("event seed id is required")
		}
		enabled := 0
		if event.Enabled {
			enabled = 1
		}
		if _, err := tx.ExecContext(
			ctx,
			insertEventSQL,
			event.ID,
			event.SeedID,
			string(event.Type),
			string(event.PayloadJSON),
			enabled,
			event.AutomationID,
			toMillis(event.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert seed event %s: %w", event.ID, err)
		}
	}
	return nil
}

// SetSeedEventEnabled toggles one event's participation in state folds.
func (s *Store) SetSeedEventEnabled(ctx context.Context, eventID string, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	value := 0
	if enabled {
		value = 1
	}
	res, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE seed_events SET enabled = ? WHERE id = ?`,
		value,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("set seed event enabled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set seed event enabled rows: %w", err)
	}
	if affected == 0 {
		return seed.ErrNotFound
	}
	return nil
}

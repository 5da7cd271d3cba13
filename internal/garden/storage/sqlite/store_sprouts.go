package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/sprout"
)

// PutSprout inserts one sprout record.
func (s *Store) PutSprout(ctx context.Context, record sprout.Sprout) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("sprout id is required")
	}

	const putSproutSQL = `
INSERT INTO sprouts (id, seed_id, owner_id, kind, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`
	if _, err := s.sqlDB.ExecContext(
		ctx,
		putSproutSQL,
		record.ID,
		record.SeedID,
		record.OwnerID,
		string(record.Kind),
		toMillis(record.CreatedAt),
	); err != nil {
		return fmt.Errorf("put sprout: %w", err)
	}
	return nil
}

// CreateReminderSprout inserts a reminder sprout and its opening transaction
// in one database transaction so a reminder row can never exist with an
// empty log.
func (s *Store) CreateReminderSprout(ctx context.Context, record sprout.Sprout, created sprout.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("sprout id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create reminder sprout: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO sprouts (id, seed_id, owner_id, kind, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.SeedID,
		record.OwnerID,
		string(record.Kind),
		toMillis(record.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert reminder sprout %s: %w", record.ID, err)
	}
	if err := appendTransactionsTx(ctx, tx, []sprout.Transaction{created}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create reminder sprout: %w", err)
	}
	return nil
}

// GetSprout loads one sprout scoped to its owner.
func (s *Store) GetSprout(ctx context.Context, sproutID, ownerID string) (sprout.Sprout, error) {
	if err := ctx.Err(); err != nil {
		return sprout.Sprout{}, err
	}
	if err := s.ready(); err != nil {
		return sprout.Sprout{}, err
	}

	var (
		record    sprout.Sprout
		kind      string
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, seed_id, owner_id, kind, created_at
		 FROM sprouts
		 WHERE id = ? AND owner_id = ?`,
		sproutID,
		ownerID,
	).Scan(&record.ID, &record.SeedID, &record.OwnerID, &kind, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sprout.Sprout{}, sprout.ErrNotFound
	}
	if err != nil {
		return sprout.Sprout{}, fmt.Errorf("get sprout: %w", err)
	}
	record.Kind = sprout.Kind(kind)
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

// ListSprouts returns an owner's sprouts of one kind in creation order.
func (s *Store) ListSprouts(ctx context.Context, ownerID string, kind sprout.Kind) ([]sprout.Sprout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, seed_id, owner_id, kind, created_at
		 FROM sprouts
		 WHERE owner_id = ? AND kind = ?
		 ORDER BY created_at ASC, id ASC`,
		ownerID,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list sprouts: %w", err)
	}
	defer rows.Close()

	var sprouts []sprout.Sprout
	for rows.Next() {
		var (
			record    sprout.Sprout
			rowKind   string
			createdAt int64
		)
		if err := rows.Scan(&record.ID, &record.SeedID, &record.OwnerID, &rowKind, &createdAt); err != nil {
			return nil, fmt.Errorf("scan sprout: %w", err)
		}
		record.Kind = sprout.Kind(rowKind)
		record.CreatedAt = fromMillis(createdAt)
		sprouts = append(sprouts, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sprouts: %w", err)
	}
	return sprouts, nil
}

// ListTransactions returns a sprout's transaction log in insertion order.
func (s *Store) ListTransactions(ctx context.Context, sproutID string) ([]sprout.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT seq, id, sprout_id, type, payload, created_at
		 FROM sprout_transactions
		 WHERE sprout_id = ?
		 ORDER BY seq ASC`,
		sproutID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sprout transactions: %w", err)
	}
	defer rows.Close()

	var transactions []sprout.Transaction
	for rows.Next() {
		var (
			record    sprout.Transaction
			txType    string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&record.Seq, &record.ID, &record.SproutID, &txType, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan sprout transaction: %w", err)
		}
		record.Type = sprout.TxType(txType)
		record.PayloadJSON = []byte(payload)
		record.CreatedAt = fromMillis(createdAt)
		transactions = append(transactions, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sprout transactions: %w", err)
	}
	return transactions, nil
}

// AppendTransactions appends transactions to their logs in one transaction.
// The store assigns each row's insertion sequence.
func (s *Store) AppendTransactions(ctx context.Context, transactions []sprout.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if len(transactions) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append transactions: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := appendTransactionsTx(ctx, tx, transactions); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append transactions: %w", err)
	}
	return nil
}

func appendTransactionsTx(ctx context.Context, tx *sql.Tx, transactions []sprout.Transaction) error {
	const insertTransactionSQL = `
INSERT INTO sprout_transactions (id, sprout_id, type, payload, created_at)
VALUES (?, ?, ?, ?, ?)
`
	for _, record := range transactions {
		if strings.TrimSpace(record.ID) == "" {
			return fmt.Errorf("transaction id is required")
		}
		if strings.TrimSpace(record.SproutID) == "" {
			return fmt.Errorf("transaction sprout id is required")
		}
		if _, err := tx.ExecContext(
			ctx,
			insertTransactionSQL,
			record.ID,
			record.SproutID,
			string(record.Type),
			string(record.PayloadJSON),
			toMillis(record.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert sprout transaction %s: %w", record.ID, err)
		}
	}
	return nil
}

// PutMusing inserts or updates one musing projection row.
func (s *Store) PutMusing(ctx context.Context, m sprout.Musing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(m.SproutID) == "" {
		return fmt.Errorf("musing sprout id is required")
	}

	dismissed := 0
	dismissedAt := int64(0)
	if m.Dismissed {
		dismissed = 1
		dismissedAt = toMillis(m.DismissedAt)
	}
	const putMusingSQL = `
INSERT INTO musings (sprout_id, body, dismissed, dismissed_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(sprout_id) DO UPDATE SET
    body = excluded.body,
    dismissed = excluded.dismissed,
    dismissed_at = excluded.dismissed_at
`
	if _, err := s.sqlDB.ExecContext(ctx, putMusingSQL, m.SproutID, m.Text, dismissed, dismissedAt); err != nil {
		return fmt.Errorf("put musing: %w", err)
	}
	return nil
}

// GetMusing loads one musing projection row.
func (s *Store) GetMusing(ctx context.Context, sproutID string) (sprout.Musing, error) {
	if err := ctx.Err(); err != nil {
		return sprout.Musing{}, err
	}
	if err := s.ready(); err != nil {
		return sprout.Musing{}, err
	}

	var (
		record      sprout.Musing
		dismissed   int64
		dismissedAt int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT sprout_id, body, dismissed, dismissed_at
		 FROM musings
		 WHERE sprout_id = ?`,
		sproutID,
	).Scan(&record.SproutID, &record.Text, &dismissed, &dismissedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sprout.Musing{}, sprout.ErrNotFound
	}
	if err != nil {
		return sprout.Musing{}, fmt.Errorf("get musing: %w", err)
	}
	record.Dismissed = dismissed != 0
	if record.Dismissed {
		record.DismissedAt = fromMillis(dismissedAt)
	}
	return record, nil
}

// SetMusingDismissed marks a musing dismissed.
func (s *Store) SetMusingDismissed(ctx context.Context, sproutID string, dismissedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	res, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE musings SET dismissed = 1, dismissed_at = ? WHERE sprout_id = ?`,
		toMillis(dismissedAt),
		sproutID,
	)
	if err != nil {
		return fmt.Errorf("set musing dismissed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set musing dismissed rows: %w", err)
	}
	if affected == 0 {
		return sprout.ErrNotFound
	}
	return nil
}

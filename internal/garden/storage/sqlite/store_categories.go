package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/category"
)

// EnsureCategoryPath creates a category path and any missing ancestors,
// reporting whether the leaf row was created.
func (s *Store) EnsureCategoryPath(ctx context.Context, ownerID, path string) (category.Category, bool, error) {
	if err := ctx.Err(); err != nil {
		return category.Category{}, false, err
	}
	if err := s.ready(); err != nil {
		return category.Category{}, false, err
	}
	ownerID = strings.TrimSpace(ownerID)
	path = strings.Trim(strings.TrimSpace(path), "/")
	if ownerID == "" {
		return category.Category{}, false, fmt.Errorf("owner id is required")
	}
	if path == "" {
		return category.Category{}, false, fmt.Errorf("category path is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return category.Category{}, false, fmt.Errorf("begin ensure category: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(time.Now())
	const insertCategorySQL = `
INSERT INTO categories (owner_id, path, created_at)
VALUES (?, ?, ?)
ON CONFLICT(owner_id, path) DO NOTHING
`
	created := false
	segments := strings.Split(path, "/")
	for i := range segments {
		prefix := strings.Join(segments[:i+1], "/")
		res, err := tx.ExecContext(ctx, insertCategorySQL, ownerID, prefix, now)
		if err != nil {
			return category.Category{}, false, fmt.Errorf("insert category %s: %w", prefix, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return category.Category{}, false, fmt.Errorf("insert category rows: %w", err)
		}
		if prefix == path {
			created = affected > 0
		}
	}

	var createdAt int64
	if err := tx.QueryRowContext(
		ctx,
		`SELECT created_at FROM categories WHERE owner_id = ? AND path = ?`,
		ownerID,
		path,
	).Scan(&createdAt); err != nil {
		return category.Category{}, false, fmt.Errorf("read category: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return category.Category{}, false, fmt.Errorf("commit ensure category: %w", err)
	}

	return category.Category{
		OwnerID:   ownerID,
		Path:      path,
		CreatedAt: fromMillis(createdAt),
	}, created, nil
}

// ListCategories returns an owner's category paths in lexical order.
func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]category.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT owner_id, path, created_at
		 FROM categories
		 WHERE owner_id = ?
		 ORDER BY path ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []category.Category
	for rows.Next() {
		var (
			record    category.Category
			createdAt int64
		)
		if err := rows.Scan(&record.OwnerID, &record.Path, &createdAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		categories = append(categories, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// RepathCategory rewrites one path and the paths of its descendants.
func (s *Store) RepathCategory(ctx context.Context, ownerID, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin repath category: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`UPDATE categories SET path = ? WHERE owner_id = ? AND path = ?`,
		newPath,
		ownerID,
		oldPath,
	)
	if err != nil {
		return fmt.Errorf("repath category: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repath category rows: %w", err)
	}
	if affected == 0 {
		return category.ErrNotFound
	}

	// Descendants keep their suffix under the new prefix.
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE categories
		 SET path = ? || substr(path, ?)
		 WHERE owner_id = ? AND path LIKE ? || '/%'`,
		newPath,
		len(oldPath)+1,
		ownerID,
		oldPath,
	); err != nil {
		return fmt.Errorf("repath category descendants: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit repath category: %w", err)
	}
	return nil
}

// RemoveCategory deletes a path and its descendants.
func (s *Store) RemoveCategory(ctx context.Context, ownerID, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove category: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`DELETE FROM categories WHERE owner_id = ? AND path = ?`,
		ownerID,
		path,
	)
	if err != nil {
		return fmt.Errorf("remove category: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove category rows: %w", err)
	}
	if affected == 0 {
		return category.ErrNotFound
	}

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM categories WHERE owner_id = ? AND path LIKE ? || '/%'`,
		ownerID,
		path,
	); err != nil {
		return fmt.Errorf("remove category descendants: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove category: %w", err)
	}
	return nil
}

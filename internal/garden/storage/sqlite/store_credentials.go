package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/harms-haus/memoriae/internal/garden/storage"
)

// PutModelCredential inserts or updates one owner's model credential.
func (s *Store) PutModelCredential(ctx context.Context, c storage.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	c.OwnerID = strings.TrimSpace(c.OwnerID)
	c.Provider = strings.TrimSpace(c.Provider)
	c.Model = strings.TrimSpace(c.Model)
	if c.OwnerID == "" {
		return fmt.Errorf("owner id is required")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api key is required")
	}

	const putCredentialSQL = `
INSERT INTO model_credentials (owner_id, provider, model, api_key, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(owner_id) DO UPDATE SET
    provider = excluded.provider,
    model = excluded.model,
    api_key = excluded.api_key,
    updated_at = excluded.updated_at
`
	if _, err := s.sqlDB.ExecContext(
		ctx,
		putCredentialSQL,
		c.OwnerID,
		c.Provider,
		c.Model,
		c.APIKey,
		toMillis(c.CreatedAt),
		toMillis(c.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put model credential: %w", err)
	}
	return nil
}

// GetModelCredential loads one owner's model credential.
func (s *Store) GetModelCredential(ctx context.Context, ownerID string) (storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return storage.Credential{}, err
	}
	if err := s.ready(); err != nil {
		return storage.Credential{}, err
	}

	var (
		c         storage.Credential
		createdAt int64
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT owner_id, provider, model, api_key, created_at, updated_at
		 FROM model_credentials
		 WHERE owner_id = ?`,
		ownerID,
	).Scan(&c.OwnerID, &c.Provider, &c.Model, &c.APIKey, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Credential{}, storage.ErrCredentialNotFound
	}
	if err != nil {
		return storage.Credential{}, fmt.Errorf("get model credential: %w", err)
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

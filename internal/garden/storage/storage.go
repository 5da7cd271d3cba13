// Package storage defines the persistence boundary for the garden runtime.
//
// Domain packages own the interfaces they consume (seed.Store, sprout.Store,
// dispatch.Store); this package aggregates them, adds the cross-cutting
// surfaces (credentials, categories, atomic automation output), and defines
// the record types that belong to no single domain.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/automation"
	"github.com/harms-haus/memoriae/internal/garden/category"
	"github.com/harms-haus/memoriae/internal/garden/dispatch"
	"github.com/harms-haus/memoriae/internal/garden/seed"
	"github.com/harms-haus/memoriae/internal/garden/sprout"
)

// ErrCredentialNotFound indicates an owner has no stored model credential.
// Job processing treats this as "not configured", a successful no-op.
var ErrCredentialNotFound = errors.New("model credential not found")

// Credential is one owner's model execution configuration. Read fresh on
// every job rather than cached.
type Credential struct {
	OwnerID   string
	Provider  string
	Model     string
	APIKey    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CredentialStore persists per-owner execution configuration.
type CredentialStore interface {
	PutModelCredential(ctx context.Context, c Credential) error
	GetModelCredential(ctx context.Context, ownerID string) (Credential, error)
}

// OwnerStore enumerates owners for the scheduled sweep.
type OwnerStore interface {
	// ListOwners returns every owner with at least one seed.
	ListOwners(ctx context.Context) ([]string, error)
}

// SeedIndexStore lists seeds beyond the single-record reads seed.Store covers.
type SeedIndexStore interface {
	ListSeedsByOwner(ctx context.Context, ownerID string) ([]seed.Seed, error)
}

// NewReminder pairs a reminder sprout with its opening transaction.
type NewReminder struct {
	Sprout      sprout.Sprout
	Transaction sprout.Transaction
}

// NewMusing pairs a musing sprout with its projection row.
type NewMusing struct {
	Sprout sprout.Sprout
	Musing sprout.Musing
}

// AutomationBatch is the unit of automation output persisted atomically:
// either every entry lands or none does. An empty batch is a valid success.
type AutomationBatch struct {
	Events    []seed.Event
	Reminders []NewReminder
	Musings   []NewMusing
}

// Empty reports whether the batch has nothing to persist.
func (b AutomationBatch) Empty() bool {
	return len(b.Events) == 0 && len(b.Reminders) == 0 && len(b.Musings) == 0
}

// BatchStore persists automation output.
type BatchStore interface {
	ApplyAutomationBatch(ctx context.Context, batch AutomationBatch) error
}

// Store aggregates every persistence surface the garden runtime wires.
type Store interface {
	seed.Store
	sprout.Store
	dispatch.Store
	automation.PressureStore
	category.Store
	CredentialStore
	OwnerStore
	SeedIndexStore
	BatchStore
	Close() error
}

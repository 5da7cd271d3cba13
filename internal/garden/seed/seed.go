// Package seed defines the seed entity, its append-only event log, and the
// reducer that derives current state from that log.
//
// A seed's base content is immutable. Everything else the system knows about
// a seed (tags, category, summary) is derived by folding the seed's enabled
// events in insertion order; derived state is never persisted.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/harms-haus/memoriae/internal/platform/id"
)

var (
	// ErrNotFound indicates a seed or event record was not found.
	ErrNotFound = errors.New("seed not found")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("seed store is not configured")
	// ErrOwnerIDRequired indicates owner identity is required.
	ErrOwnerIDRequired = errors.New("owner id is required")
	// ErrSeedIDRequired indicates a seed id is required.
	ErrSeedIDRequired = errors.New("seed id is required")
	// ErrContentRequired indicates seed content is required.
	ErrContentRequired = errors.New("seed content is required")
	// ErrEventIDRequired indicates an event id is required.
	ErrEventIDRequired = errors.New("event id is required")
)

// Seed is one user-authored note. Never mutated after creation except
// through its event log.
type Seed struct {
	ID        string
	OwnerID   string
	Content   string
	CreatedAt time.Time
}

// Store is the persistence boundary for seeds and their event logs.
type Store interface {
	PutSeed(ctx context.Context, s Seed) error
	GetSeed(ctx context.Context, seedID, ownerID string) (Seed, error)
	ListSeedEvents(ctx context.Context, seedID string) ([]Event, error)
	AppendSeedEvents(ctx context.Context, events []Event) error
	SetSeedEventEnabled(ctx context.Context, eventID string, enabled bool) error
}

// CreateInput describes one seed creation request.
type CreateInput struct {
	OwnerID string
	Content string
}

// AppendEventInput describes one direct (user-authored) event append.
type AppendEventInput struct {
	SeedID       string
	OwnerID      string
	Type         OpType
	PayloadJSON  []byte
	AutomationID string
}

// Service orchestrates seed lifecycle and log reads.
type Service struct {
	store Store
	clock func() time.Time
	newID func() (string, error)
}

// NewService constructs seed domain use-cases.
func NewService(store Store, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{store: store, clock: clock, newID: newID}
}

// Create persists a new seed.
func (s *Service) Create(ctx context.Context, input CreateInput) (Seed, error) {
	if s == nil || s.store == nil {
		return Seed{}, ErrStoreNotConfigured
	}
	input.OwnerID = strings.TrimSpace(input.OwnerID)
	if input.OwnerID == "" {
		return Seed{}, ErrOwnerIDRequired
	}
	if strings.TrimSpace(input.Content) == "" {
		return Seed{}, ErrContentRequired
	}

	seedID, err := s.newID()
	if err != nil {
		return Seed{}, err
	}
	created := Seed{
		ID:        seedID,
		OwnerID:   input.OwnerID,
		Content:   input.Content,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.store.PutSeed(ctx, created); err != nil {
		return Seed{}, err
	}
	return created, nil
}

// Get returns one seed by id scoped to its owner.
func (s *Service) Get(ctx context.Context, seedID, ownerID string) (Seed, error) {
	if s == nil || s.store == nil {
		return Seed{}, ErrStoreNotConfigured
	}
	seedID = strings.TrimSpace(seedID)
	if seedID == "" {
		return Seed{}, ErrSeedIDRequired
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Seed{}, ErrOwnerIDRequired
	}
	return s.store.GetSeed(ctx, seedID, ownerID)
}

// State recomputes the seed's derived state from its full event log.
func (s *Service) State(ctx context.Context, seedID, ownerID string) (State, error) {
	base, err := s.Get(ctx, seedID, ownerID)
	if err != nil {
		return State{}, err
	}
	events, err := s.store.ListSeedEvents(ctx, base.ID)
	if err != nil {
		return State{}, err
	}
	return ComputeState(base, events), nil
}

// AppendEvent appends one event to a seed's log.
func (s *Service) AppendEvent(ctx context.Context, input AppendEventInput) (Event, error) {
	if s == nil || s.store == nil {
		return Event{}, ErrStoreNotConfigured
	}
	base, err := s.Get(ctx, input.SeedID, input.OwnerID)
	if err != nil {
		return Event{}, err
	}
	if !input.Type.Valid() {
		return Event{}, ErrUnknownOpType
	}

	eventID, err := s.newID()
	if err != nil {
		return Event{}, err
	}
	evt := Event{
		ID:           eventID,
		SeedID:       base.ID,
		Type:         input.Type,
		PayloadJSON:  input.PayloadJSON,
		Enabled:      true,
		AutomationID: strings.TrimSpace(input.AutomationID),
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.store.AppendSeedEvents(ctx, []Event{evt}); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// SetEventEnabled soft-toggles one event. This is the only permitted event
// mutation; entries are never physically deleted or edited.
func (s *Service) SetEventEnabled(ctx context.Context, eventID string, enabled bool) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return ErrEventIDRequired
	}
	return s.store.SetSeedEventEnabled(ctx, eventID, enabled)
}

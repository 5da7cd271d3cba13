package sprout

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/harms-haus/memoriae/internal/platform/id"
)

var (
	// ErrNotFound indicates a sprout record was not found.
	ErrNotFound = errors.New("sprout not found")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("sprout store is not configured")
	// ErrOwnerIDRequired indicates owner identity is required.
	ErrOwnerIDRequired = errors.New("owner id is required")
	// ErrSeedIDRequired indicates a seed id is required.
	ErrSeedIDRequired = errors.New("seed id is required")
	// ErrSproutIDRequired indicates a sprout id is required.
	ErrSproutIDRequired = errors.New("sprout id is required")
	// ErrNotReminder indicates a reminder operation was aimed at a non-reminder sprout.
	ErrNotReminder = errors.New("sprout is not a reminder")
	// ErrNotMusing indicates a musing operation was aimed at a non-musing sprout.
	ErrNotMusing = errors.New("sprout is not a musing")
	// ErrReminderDismissed rejects edit/snooze on an already-dismissed reminder.
	ErrReminderDismissed = errors.New("reminder is dismissed")
	// ErrSnoozeMinutesInvalid rejects non-positive snooze durations.
	ErrSnoozeMinutesInvalid = errors.New("snooze minutes must be positive")
	// ErrDueAtRequired indicates a reminder needs a due time.
	ErrDueAtRequired = errors.New("reminder due time is required")
	// ErrEditEmpty indicates an edit with nothing to change.
	ErrEditEmpty = errors.New("reminder edit changes nothing")
)

// Store is the persistence boundary for sprouts, transaction logs, and
// musing projections.
type Store interface {
	PutSprout(ctx context.Context, s Sprout) error
	// CreateReminderSprout persists a reminder sprout together with its
	// opening transaction atomically. A reminder row must never exist
	// without its creation entry.
	CreateReminderSprout(ctx context.Context, s Sprout, created Transaction) error
	GetSprout(ctx context.Context, sproutID, ownerID string) (Sprout, error)
	ListSprouts(ctx context.Context, ownerID string, kind Kind) ([]Sprout, error)
	ListTransactions(ctx context.Context, sproutID string) ([]Transaction, error)
	AppendTransactions(ctx context.Context, transactions []Transaction) error
	PutMusing(ctx context.Context, m Musing) error
	GetMusing(ctx context.Context, sproutID string) (Musing, error)
	SetMusingDismissed(ctx context.Context, sproutID string, dismissedAt time.Time) error
}

// Service orchestrates sprout lifecycle: reminder mutation guards and musing
// projection updates.
type Service struct {
	store Store
	clock func() time.Time
	newID func() (string, error)
}

// NewService constructs sprout domain use-cases.
func NewService(store Store, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{store: store, clock: clock, newID: newID}
}

// CreateReminderInput describes one reminder creation request.
type CreateReminderInput struct {
	SeedID  string
	OwnerID string
	DueAt   time.Time
	Message string
}

// CreateReminder attaches a reminder sprout to a seed and opens its
// transaction log with the required creation entry.
func (s *Service) CreateReminder(ctx context.Context, input CreateReminderInput) (Sprout, error) {
	if s == nil || s.store == nil {
		return Sprout{}, ErrStoreNotConfigured
	}
	input.SeedID = strings.TrimSpace(input.SeedID)
	if input.SeedID == "" {
		return Sprout{}, ErrSeedIDRequired
	}
	input.OwnerID = strings.TrimSpace(input.OwnerID)
	if input.OwnerID == "" {
		return Sprout{}, ErrOwnerIDRequired
	}
	if input.DueAt.IsZero() {
		return Sprout{}, ErrDueAtRequired
	}

	sproutID, err := s.newID()
	if err != nil {
		return Sprout{}, err
	}
	now := s.clock().UTC()
	created := Sprout{
		ID:        sproutID,
		SeedID:    input.SeedID,
		OwnerID:   input.OwnerID,
		Kind:      KindReminder,
		CreatedAt: now,
	}
	opening, err := s.buildTransaction(sproutID, TxReminderCreated, CreatedPayload{
		DueAt:   input.DueAt.UTC(),
		Message: input.Message,
	}, now)
	if err != nil {
		return Sprout{}, err
	}
	if err := s.store.CreateReminderSprout(ctx, created, opening); err != nil {
		return Sprout{}, err
	}
	return created, nil
}

// Reminder folds one reminder's transaction log into its current state.
func (s *Service) Reminder(ctx context.Context, sproutID, ownerID string) (ReminderState, error) {
	_, transactions, err := s.loadReminder(ctx, sproutID, ownerID)
	if err != nil {
		return ReminderState{}, err
	}
	return ComputeReminderState(transactions)
}

// EditReminderInput describes one reminder edit. Nil fields keep the current value.
type EditReminderInput struct {
	SproutID string
	OwnerID  string
	DueAt    *time.Time
	Message  *string
}

// EditReminder appends an edit transaction unless the reminder is dismissed.
func (s *Service) EditReminder(ctx context.Context, input EditReminderInput) error {
	if input.DueAt == nil && input.Message == nil {
		return ErrEditEmpty
	}
	state, err := s.mutableReminder(ctx, input.SproutID, input.OwnerID)
	if err != nil {
		return err
	}
	payload := EditedPayload{Message: input.Message}
	if input.DueAt != nil {
		due := input.DueAt.UTC()
		payload.DueAt = &due
	}
	return s.appendTransaction(ctx, state.SproutID, TxReminderEdited, payload, s.clock().UTC())
}

// SnoozeReminder pushes the reminder's due time forward by minutes, unless
// the reminder is dismissed. Snoozes compound additively.
func (s *Service) SnoozeReminder(ctx context.Context, sproutID, ownerID string, minutes int) error {
	if minutes <= 0 {
		return ErrSnoozeMinutesInvalid
	}
	state, err := s.mutableReminder(ctx, sproutID, ownerID)
	if err != nil {
		return err
	}
	return s.appendTransaction(ctx, state.SproutID, TxReminderSnoozed, SnoozedPayload{Minutes: minutes}, s.clock().UTC())
}

// DismissReminder terminates the reminder. Dismissing twice is rejected like
// any other post-dismissal mutation.
func (s *Service) DismissReminder(ctx context.Context, sproutID, ownerID string) error {
	state, err := s.mutableReminder(ctx, sproutID, ownerID)
	if err != nil {
		return err
	}
	return s.appendTransaction(ctx, state.SproutID, TxReminderDismissed, struct{}{}, s.clock().UTC())
}

// DueReminder pairs a reminder sprout with its folded state.
type DueReminder struct {
	Sprout Sprout
	State  ReminderState
}

// DueReminders returns the owner's undismissed reminders due at or before
// the cutoff. State is recomputed from each log on every call.
func (s *Service) DueReminders(ctx context.Context, ownerID string, cutoff time.Time) ([]DueReminder, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrOwnerIDRequired
	}

	sprouts, err := s.store.ListSprouts(ctx, ownerID, KindReminder)
	if err != nil {
		return nil, err
	}
	var due []DueReminder
	for _, sp := range sprouts {
		transactions, err := s.store.ListTransactions(ctx, sp.ID)
		if err != nil {
			return nil, err
		}
		state, err := ComputeReminderState(transactions)
		if err != nil {
			// One malformed log must not hide the owner's other reminders.
			log.Printf("skipping reminder %s: %v", sp.ID, err)
			continue
		}
		if state.Dismissed || state.DueAt.After(cutoff) {
			continue
		}
		due = append(due, DueReminder{Sprout: sp, State: state})
	}
	return due, nil
}

// CreateMusingInput describes one musing attachment request.
type CreateMusingInput struct {
	SeedID  string
	OwnerID string
	Text    string
}

// CreateMusing attaches an idea-prompt sprout with a flat projection.
func (s *Service) CreateMusing(ctx context.Context, input CreateMusingInput) (Sprout, error) {
	if s == nil || s.store == nil {
		return Sprout{}, ErrStoreNotConfigured
	}
	input.SeedID = strings.TrimSpace(input.SeedID)
	if input.SeedID == "" {
		return Sprout{}, ErrSeedIDRequired
	}
	input.OwnerID = strings.TrimSpace(input.OwnerID)
	if input.OwnerID == "" {
		return Sprout{}, ErrOwnerIDRequired
	}

	sproutID, err := s.newID()
	if err != nil {
		return Sprout{}, err
	}
	created := Sprout{
		ID:        sproutID,
		SeedID:    input.SeedID,
		OwnerID:   input.OwnerID,
		Kind:      KindMusing,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.store.PutSprout(ctx, created); err != nil {
		return Sprout{}, err
	}
	if err := s.store.PutMusing(ctx, Musing{SproutID: sproutID, Text: input.Text}); err != nil {
		return Sprout{}, err
	}
	return created, nil
}

// DismissMusing marks a musing as handled. Unlike reminders this is a plain
// projection update, not a log append.
func (s *Service) DismissMusing(ctx context.Context, sproutID, ownerID string) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	sp, err := s.getSprout(ctx, sproutID, ownerID)
	if err != nil {
		return err
	}
	if sp.Kind != KindMusing {
		return ErrNotMusing
	}
	return s.store.SetMusingDismissed(ctx, sp.ID, s.clock().UTC())
}

func (s *Service) getSprout(ctx context.Context, sproutID, ownerID string) (Sprout, error) {
	if s == nil || s.store == nil {
		return Sprout{}, ErrStoreNotConfigured
	}
	sproutID = strings.TrimSpace(sproutID)
	if sproutID == "" {
		return Sprout{}, ErrSproutIDRequired
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Sprout{}, ErrOwnerIDRequired
	}
	return s.store.GetSprout(ctx, sproutID, ownerID)
}

func (s *Service) loadReminder(ctx context.Context, sproutID, ownerID string) (Sprout, []Transaction, error) {
	sp, err := s.getSprout(ctx, sproutID, ownerID)
	if err != nil {
		return Sprout{}, nil, err
	}
	if sp.Kind != KindReminder {
		return Sprout{}, nil, ErrNotReminder
	}
	transactions, err := s.store.ListTransactions(ctx, sp.ID)
	if err != nil {
		return Sprout{}, nil, err
	}
	return sp, transactions, nil
}

// mutableReminder folds the log and rejects mutation once dismissed. The
// reducer itself folds whatever it is given; the terminality rule lives here.
func (s *Service) mutableReminder(ctx context.Context, sproutID, ownerID string) (ReminderState, error) {
	_, transactions, err := s.loadReminder(ctx, sproutID, ownerID)
	if err != nil {
		return ReminderState{}, err
	}
	state, err := ComputeReminderState(transactions)
	if err != nil {
		return ReminderState{}, err
	}
	if state.Dismissed {
		return ReminderState{}, ErrReminderDismissed
	}
	return state, nil
}

func (s *Service) buildTransaction(sproutID string, txType TxType, payload any, at time.Time) (Transaction, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Transaction{}, err
	}
	txID, err := s.newID()
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		ID:          txID,
		SproutID:    sproutID,
		Type:        txType,
		PayloadJSON: encoded,
		CreatedAt:   at,
	}, nil
}

func (s *Service) appendTransaction(ctx context.Context, sproutID string, txType TxType, payload any, at time.Time) error {
	record, err := s.buildTransaction(sproutID, txType, payload, at)
	if err != nil {
		return err
	}
	return s.store.AppendTransactions(ctx, []Transaction{record})
}

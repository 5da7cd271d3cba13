package sprout

import (
	"errors"
	"log"
	"sort"
	"time"
)

// ErrNoCreationTransaction indicates a reminder log missing its creation
// entry. Reconstructing such a log is fatal, never silently defaulted.
var ErrNoCreationTransaction = errors.New("reminder log has no creation transaction")

// ReminderState is the derived view of a reminder transaction log.
type ReminderState struct {
	SproutID    string
	DueAt       time.Time
	Message     string
	Dismissed   bool
	DismissedAt time.Time
	// History holds every folded transaction in chronological order,
	// including entries recorded after dismissal.
	History []Transaction
}

// LastTransaction returns the most recent folded transaction.
func (s ReminderState) LastTransaction() (Transaction, bool) {
	if len(s.History) == 0 {
		return Transaction{}, false
	}
	return s.History[len(s.History)-1], true
}

// ComputeReminderState folds a reminder's transaction log.
//
// Exactly one creation transaction is required; zero is a reconstruction
// error. Edits apply in chronological order and only when the new value
// differs from the current one. Snoozes compound: each adds its minutes to
// the current due time, not to the time of the snooze. Dismissal marks the
// state but the fold itself keeps accepting later transactions; refusing
// post-dismissal mutations is the mutation API's job, not the reducer's.
func ComputeReminderState(transactions []Transaction) (ReminderState, error) {
	ordered := make([]Transaction, len(transactions))
	copy(ordered, transactions)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	state := ReminderState{}
	created := false
	for _, tx := range ordered {
		switch tx.Type {
		case TxReminderCreated:
			if created {
				log.Printf("reminder %s: skipping duplicate creation transaction %s", tx.SproutID, tx.ID)
				continue
			}
			var payload CreatedPayload
			if err := decodePayload(tx, &payload); err != nil {
				return ReminderState{}, err
			}
			state.SproutID = tx.SproutID
			state.DueAt = payload.DueAt
			state.Message = payload.Message
			created = true
		case TxReminderEdited:
			if !created {
				return ReminderState{}, ErrNoCreationTransaction
			}
			var payload EditedPayload
			if err := decodePayload(tx, &payload); err != nil {
				return ReminderState{}, err
			}
			if payload.DueAt != nil && !payload.DueAt.Equal(state.DueAt) {
				state.DueAt = *payload.DueAt
			}
			if payload.Message != nil && *payload.Message != state.Message {
				state.Message = *payload.Message
			}
		case TxReminderSnoozed:
			if !created {
				return ReminderState{}, ErrNoCreationTransaction
			}
			var payload SnoozedPayload
			if err := decodePayload(tx, &payload); err != nil {
				return ReminderState{}, err
			}
			state.DueAt = state.DueAt.Add(time.Duration(payload.Minutes) * time.Minute)
		case TxReminderDismissed:
			if !created {
				return ReminderState{}, ErrNoCreationTransaction
			}
			state.Dismissed = true
			state.DismissedAt = tx.CreatedAt
		default:
			log.Printf("reminder %s: skipping unknown transaction type %q", tx.SproutID, tx.Type)
			continue
		}
		state.History = append(state.History, tx)
	}

	if !created {
		return ReminderState{}, ErrNoCreationTransaction
	}
	return state, nil
}

// Package sprout defines typed attachments to seeds: reminders backed by
// their own append-only transaction log, and musings backed by a simple
// mutable projection.
package sprout

import (
	"encoding/json"
	"errors"
	"time"
)

// Kind classifies a sprout attachment.
type Kind string

const (
	// KindReminder is a due-time reminder with a transaction log.
	KindReminder Kind = "reminder"
	// KindMusing is an idea prompt with a flat projection.
	KindMusing Kind = "musing"
)

// Sprout is one typed attachment to a seed.
type Sprout struct {
	ID        string
	SeedID    string
	OwnerID   string
	Kind      Kind
	CreatedAt time.Time
}

// TxType tags one reminder transaction variant.
type TxType string

const (
	// TxReminderCreated opens a reminder log. Exactly one per reminder.
	TxReminderCreated TxType = "reminder.created"
	// TxReminderEdited changes due time and/or message.
	TxReminderEdited TxType = "reminder.edited"
	// TxReminderSnoozed pushes the current due time forward by minutes.
	TxReminderSnoozed TxType = "reminder.snoozed"
	// TxReminderDismissed terminates the reminder.
	TxReminderDismissed TxType = "reminder.dismissed"
)

// Transaction is one immutable, append-only reminder log entry.
type Transaction struct {
	ID       string
	SproutID string
	// Seq is the store-assigned insertion id used as the stable tie-break.
	Seq         uint64
	Type        TxType
	PayloadJSON []byte
	CreatedAt   time.Time
}

// CreatedPayload is the payload for reminder.created.
type CreatedPayload struct {
	DueAt   time.Time `json:"due_at"`
	Message string    `json:"message"`
}

// EditedPayload is the payload for reminder.edited. Nil fields leave the
// current value untouched.
type EditedPayload struct {
	DueAt   *time.Time `json:"due_at,omitempty"`
	Message *string    `json:"message,omitempty"`
}

// SnoozedPayload is the payload for reminder.snoozed.
type SnoozedPayload struct {
	Minutes int `json:"minutes"`
}

// Musing is the flat projection for an idea-prompt sprout.
type Musing struct {
	SproutID    string
	Text        string
	Dismissed   bool
	DismissedAt time.Time
}

// ErrTransactionPayloadInvalid indicates an undecodable transaction payload.
var ErrTransactionPayloadInvalid = errors.New("transaction payload is invalid")

func decodePayload(tx Transaction, target any) error {
	if err := json.Unmarshal(tx.PayloadJSON, target); err != nil {
		return errors.Join(ErrTransactionPayloadInvalid, err)
	}
	return nil
}

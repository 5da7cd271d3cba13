package seed

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrUnknownOpType indicates an op type outside the closed set.
var ErrUnknownOpType = errors.New("unknown event op type")

// OpType tags one of the closed set of event operations.
type OpType string

const (
	// OpTagAdded adds one tag to the seed's derived tag set.
	OpTagAdded OpType = "tag.added"
	// OpTagRemoved removes one tag from the derived tag set.
	OpTagRemoved OpType = "tag.removed"
	// OpCategoryAssigned assigns the seed to a category path.
	OpCategoryAssigned OpType = "category.assigned"
	// OpCategoryCleared clears the seed's category assignment.
	OpCategoryCleared OpType = "category.cleared"
	// OpSummarySet replaces the seed's derived summary text.
	OpSummarySet OpType = "summary.set"
)

// Valid reports whether t belongs to the closed op set.
func (t OpType) Valid() bool {
	switch t {
	case OpTagAdded, OpTagRemoved, OpCategoryAssigned, OpCategoryCleared, OpSummarySet:
		return true
	}
	return false
}

// Event is one immutable log entry against a seed. Only Enabled may change
// after insert.
type Event struct {
	ID     string
	SeedID string
	// Seq is the store-assigned insertion id, the stable tie-break for
	// entries sharing a creation timestamp.
	Seq          uint64
	Type         OpType
	PayloadJSON  []byte
	Enabled      bool
	AutomationID string // empty when user-authored
	CreatedAt    time.Time
}

// TagPayload is the payload for tag.added and tag.removed.
type TagPayload struct {
	Tag string `json:"tag"`
}

// CategoryPayload is the payload for category.assigned.
type CategoryPayload struct {
	Path string `json:"path"`
}

// SummaryPayload is the payload for summary.set.
type SummaryPayload struct {
	Text string `json:"text"`
}

// NewTagAddedEvent builds an unsaved tag.added event.
func NewTagAddedEvent(seedID, automationID, tag string, at time.Time) (Event, error) {
	return newPayloadEvent(seedID, automationID, OpTagAdded, TagPayload{Tag: tag}, at)
}

// NewCategoryAssignedEvent builds an unsaved category.assigned event.
func NewCategoryAssignedEvent(seedID, automationID, path string, at time.Time) (Event, error) {
	return newPayloadEvent(seedID, automationID, OpCategoryAssigned, CategoryPayload{Path: path}, at)
}

// NewSummarySetEvent builds an unsaved summary.set event.
func NewSummarySetEvent(seedID, automationID, text string, at time.Time) (Event, error) {
	return newPayloadEvent(seedID, automationID, OpSummarySet, SummaryPayload{Text: text}, at)
}

func newPayloadEvent(seedID, automationID string, opType OpType, payload any, at time.Time) (Event, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		SeedID:       seedID,
		Type:         opType,
		PayloadJSON:  encoded,
		Enabled:      true,
		AutomationID: automationID,
		CreatedAt:    at.UTC(),
	}, nil
}

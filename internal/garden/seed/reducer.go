package seed

import (
	"encoding/json"
	"log"
	"sort"
	"strings"
	"time"
)

// State is the derived view of a seed after folding its enabled events.
type State struct {
	SeedID    string
	OwnerID   string
	Content   string
	Tags      []string
	Category  string
	Summary   string
	CreatedAt time.Time
	// LastSeq is the insertion id of the last applied event, zero when the
	// log contributed nothing.
	LastSeq uint64
}

// HasTag reports whether the derived tag set contains tag.
func (s State) HasTag(tag string) bool {
	for _, existing := range s.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// ComputeState folds a seed's event log over its immutable base content.
//
// The fold is pure: identical input always yields identical output. Events
// apply in creation-time order with the store-assigned insertion id breaking
// ties, so replays over the same log are bit-identical regardless of the
// order entries arrive in. Disabled entries are skipped without being
// removed; a malformed entry is skipped and logged, never fatal to the
// projection.
func ComputeState(base Seed, events []Event) State {
	state := State{
		SeedID:    base.ID,
		OwnerID:   base.OwnerID,
		Content:   base.Content,
		CreatedAt: base.CreatedAt,
	}

	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	for _, evt := range ordered {
		if !evt.Enabled {
			continue
		}
		if err := applyEvent(&state, evt); err != nil {
			log.Printf("seed %s: skipping event %s (%s): %v", base.ID, evt.ID, evt.Type, err)
			continue
		}
		state.LastSeq = evt.Seq
	}
	return state
}

func applyEvent(state *State, evt Event) error {
	switch evt.Type {
	case OpTagAdded:
		var payload TagPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return err
		}
		tag := strings.TrimSpace(payload.Tag)
		if tag == "" {
			return ErrUnknownOpType
		}
		if !state.HasTag(tag) {
			state.Tags = append(state.Tags, tag)
		}
		return nil
	case OpTagRemoved:
		var payload TagPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return err
		}
		for i, tag := range state.Tags {
			if tag == payload.Tag {
				state.Tags = append(state.Tags[:i], state.Tags[i+1:]...)
				break
			}
		}
		return nil
	case OpCategoryAssigned:
		var payload CategoryPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return err
		}
		state.Category = payload.Path
		return nil
	case OpCategoryCleared:
		state.Category = ""
		return nil
	case OpSummarySet:
		var payload SummaryPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return err
		}
		state.Summary = payload.Text
		return nil
	default:
		return ErrUnknownOpType
	}
}

// Package automation catalogs the background analyzers that observe seeds
// and append derived log entries, and computes the staleness pressure that
// re-triggers them when structural context changes.
package automation

import (
	"context"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/seed"
)

// TextModel is the minimal surface automations need from an external
// language-model service. The content-generation logic behind it is an
// external collaborator.
type TextModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ExecContext carries one owner's execution configuration, resolved fresh on
// every job rather than cached.
type ExecContext struct {
	OwnerID string
	Model   string
	Text    TextModel
}

// Entry is one unit of output an automation asks the processor to persist.
// The set of variants is closed; the processor persists a returned batch
// atomically.
type Entry interface {
	isEntry()
}

// EventEntry appends one event to the seed's log.
type EventEntry struct {
	Event seed.Event
}

// CategoryEntry assigns the seed to a category path. The processor ensures
// the path exists (check-then-create) before appending the assignment event,
// so a retried job never duplicates the ancillary write.
type CategoryEntry struct {
	Path string
}

// ReminderEntry attaches a reminder sprout and opens its transaction log.
type ReminderEntry struct {
	DueAt   time.Time
	Message string
}

// MusingEntry attaches an idea-prompt sprout.
type MusingEntry struct {
	Text string
}

func (EventEntry) isEntry()    {}
func (CategoryEntry) isEntry() {}
func (ReminderEntry) isEntry() {}
func (MusingEntry) isEntry()   {}

// Automation is one independently enable/disable-able analyzer unit.
type Automation struct {
	ID      string
	Name    string
	Enabled bool

	// PressureThreshold is the accumulated pressure at which a seed becomes
	// eligible for re-evaluation without new user content.
	PressureThreshold int
	// PressureWeights maps structural change kinds to this automation's
	// per-change contribution. Unlisted kinds contribute nothing.
	PressureWeights map[ChangeKind]int

	// Applies reports whether the automation has anything to say about the
	// seed in its current state.
	Applies func(s seed.Seed, state seed.State) bool
	// Process runs the automation and returns the log entries to persist.
	// An empty batch is a valid success.
	Process func(ctx context.Context, s seed.Seed, state seed.State, exec ExecContext) ([]Entry, error)
}

package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/seed"
)

// Built-in automation ids.
const (
	TaggerID        = "tagger"
	CategorizerID   = "categorizer"
	ReminderScoutID = "reminder-scout"
	MuseID          = "muse"
)

const maxTagsPerRun = 3

// NewTagger suggests tags for a seed and appends one tag.added event per
// suggestion not already in the derived tag set.
func NewTagger() Automation {
	return Automation{
		ID:      TaggerID,
		Name:    "Tagger",
		Enabled: true,
		Applies: func(s seed.Seed, _ seed.State) bool {
			return strings.TrimSpace(s.Content) != ""
		},
		Process: func(ctx context.Context, s seed.Seed, state seed.State, exec ExecContext) ([]Entry, error) {
			prompt := fmt.Sprintf(
				"Suggest up to %d short lowercase tags for this note, comma-separated, nothing else:\n\n%s",
				maxTagsPerRun, s.Content,
			)
			response, err := exec.Text.Complete(ctx, prompt)
			if err != nil {
				return nil, fmt.Errorf("tagger completion: %w", err)
			}

			var entries []Entry
			for _, tag := range splitList(response) {
				if len(entries) == maxTagsPerRun {
					break
				}
				if state.HasTag(tag) {
					continue
				}
				evt, err := seed.NewTagAddedEvent(s.ID, TaggerID, tag, time.Now().UTC())
				if err != nil {
					return nil, err
				}
				entries = append(entries, EventEntry{Event: evt})
			}
			return entries, nil
		},
	}
}

// NewCategorizer files a seed under a category path. Category structure
// changes make prior assignments stale, so every change kind carries weight.
func NewCategorizer() Automation {
	return Automation{
		ID:                CategorizerID,
		Name:              "Categorizer",
		Enabled:           true,
		PressureThreshold: 40,
		PressureWeights: map[ChangeKind]int{
			ChangeCategoryRenamed:    25,
			ChangeCategoryRemoved:    40,
			ChangeCategoryMoved:      25,
			ChangeCategoryChildAdded: 15,
		},
		Applies: func(s seed.Seed, _ seed.State) bool {
			return strings.TrimSpace(s.Content) != ""
		},
		Process: func(ctx context.Context, s seed.Seed, state seed.State, exec ExecContext) ([]Entry, error) {
			prompt := fmt.Sprintf(
				"File this note under one slash-separated category path (e.g. home/garden). Reply with the path only:\n\n%s",
				s.Content,
			)
			response, err := exec.Text.Complete(ctx, prompt)
			if err != nil {
				return nil, fmt.Errorf("categorizer completion: %w", err)
			}
			path := normalizeCategoryPath(response)
			if path == "" || path == state.Category {
				return nil, nil
			}
			return []Entry{CategoryEntry{Path: path}}, nil
		},
	}
}

// NewReminderScout extracts a due time from the note text and attaches a
// reminder sprout. Replying "none" is a valid empty result.
func NewReminderScout() Automation {
	return Automation{
		ID:      ReminderScoutID,
		Name:    "Reminder Scout",
		Enabled: true,
		Applies: func(s seed.Seed, _ seed.State) bool {
			return strings.TrimSpace(s.Content) != ""
		},
		Process: func(ctx context.Context, s seed.Seed, _ seed.State, exec ExecContext) ([]Entry, error) {
			prompt := fmt.Sprintf(
				"If this note implies a reminder, reply with 'RFC3339-time|message'. Otherwise reply 'none':\n\n%s",
				s.Content,
			)
			response, err := exec.Text.Complete(ctx, prompt)
			if err != nil {
				return nil, fmt.Errorf("reminder scout completion: %w", err)
			}
			response = strings.TrimSpace(response)
			if response == "" || strings.EqualFold(response, "none") {
				return nil, nil
			}
			timePart, message, _ := strings.Cut(response, "|")
			dueAt, err := time.Parse(time.RFC3339, strings.TrimSpace(timePart))
			if err != nil {
				// Unparseable suggestion is an empty result, not a failure.
				return nil, nil
			}
			return []Entry{ReminderEntry{
				DueAt:   dueAt.UTC(),
				Message: strings.TrimSpace(message),
			}}, nil
		},
	}
}

// NewMuse attaches one idea-prompt musing riffing on the note.
func NewMuse() Automation {
	return Automation{
		ID:      MuseID,
		Name:    "Muse",
		Enabled: true,
		Applies: func(s seed.Seed, _ seed.State) bool {
			return strings.TrimSpace(s.Content) != ""
		},
		Process: func(ctx context.Context, s seed.Seed, _ seed.State, exec ExecContext) ([]Entry, error) {
			prompt := fmt.Sprintf(
				"Write one short, open-ended question that builds on this note. Reply with the question only:\n\n%s",
				s.Content,
			)
			response, err := exec.Text.Complete(ctx, prompt)
			if err != nil {
				return nil, fmt.Errorf("muse completion: %w", err)
			}
			text := strings.TrimSpace(response)
			if text == "" {
				return nil, nil
			}
			return []Entry{MusingEntry{Text: text}}, nil
		},
	}
}

// Defaults returns the built-in catalog in fan-out order.
func Defaults() []Automation {
	return []Automation{
		NewTagger(),
		NewCategorizer(),
		NewReminderScout(),
		NewMuse(),
	}
}

func splitList(text string) []string {
	fragments := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	var out []string
	for _, fragment := range fragments {
		value := strings.ToLower(strings.TrimSpace(fragment))
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

func normalizeCategoryPath(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return ""
	}
	segments := strings.Split(path, "/")
	var cleaned []string
	for _, segment := range segments {
		segment = strings.ToLower(strings.TrimSpace(segment))
		if segment != "" {
			cleaned = append(cleaned, segment)
		}
	}
	return strings.Join(cleaned, "/")
}

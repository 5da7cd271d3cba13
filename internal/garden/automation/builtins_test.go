package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/seed"
)

type fakeModel struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeModel) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

var builtinSeed = seed.Seed{
	ID:      "seed-1",
	OwnerID: "owner-1",
	Content: "repot the monstera next weekend",
}

func execWith(model TextModel) ExecContext {
	return ExecContext{OwnerID: "owner-1", Model: "gpt-4o-mini", Text: model}
}

func TestTaggerEmitsNewTagsOnly(t *testing.T) {
	model := &fakeModel{response: "plants, Chores , plants"}
	tagger := NewTagger()
	state := seed.State{Tags: []string{"chores"}}

	entries, err := tagger.Process(context.Background(), builtinSeed, state, execWith(model))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries len = %d, want 1", len(entries))
	}
	evt, ok := entries[0].(EventEntry)
	if !ok {
		t.Fatalf("entry type = %T, want EventEntry", entries[0])
	}
	if evt.Event.Type != seed.OpTagAdded {
		t.Fatalf("event type = %s, want %s", evt.Event.Type, seed.OpTagAdded)
	}
	if evt.Event.AutomationID != TaggerID {
		t.Fatalf("attribution = %q, want %q", evt.Event.AutomationID, TaggerID)
	}
}

func TestTaggerPropagatesModelError(t *testing.T) {
	model := &fakeModel{err: errors.New("rate limited")}
	tagger := NewTagger()

	_, err := tagger.Process(context.Background(), builtinSeed, seed.State{}, execWith(model))
	if err == nil {
		t.Fatal("expected model error to propagate")
	}
}

func TestCategorizerSkipsUnchangedPath(t *testing.T) {
	model := &fakeModel{response: " Home/Garden "}
	categorizer := NewCategorizer()
	state := seed.State{Category: "home/garden"}

	entries, err := categorizer.Process(context.Background(), builtinSeed, state, execWith(model))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %v, want empty batch for unchanged category", entries)
	}
}

func TestCategorizerEmitsCategoryEntry(t *testing.T) {
	model := &fakeModel{response: "home/garden/houseplants"}
	categorizer := NewCategorizer()

	entries, err := categorizer.Process(context.Background(), builtinSeed, seed.State{}, execWith(model))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries len = %d, want 1", len(entries))
	}
	entry, ok := entries[0].(CategoryEntry)
	if !ok {
		t.Fatalf("entry type = %T, want CategoryEntry", entries[0])
	}
	if entry.Path != "home/garden/houseplants" {
		t.Fatalf("path = %q", entry.Path)
	}
}

func TestReminderScoutParsesDueTime(t *testing.T) {
	model := &fakeModel{response: "2026-03-07T10:00:00Z|repot the monstera"}
	scout := NewReminderScout()

	entries, err := scout.Process(context.Background(), builtinSeed, seed.State{}, execWith(model))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries len = %d, want 1", len(entries))
	}
	entry, ok := entries[0].(ReminderEntry)
	if !ok {
		t.Fatalf("entry type = %T, want ReminderEntry", entries[0])
	}
	want := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	if !entry.DueAt.Equal(want) {
		t.Fatalf("due at = %v, want %v", entry.DueAt, want)
	}
	if entry.Message != "repot the monstera" {
		t.Fatalf("message = %q", entry.Message)
	}
}

func TestReminderScoutNoneIsEmptySuccess(t *testing.T) {
	for _, response := range []string{"none", "None", "", "next tuesday-ish|vague"} {
		model := &fakeModel{response: response}
		scout := NewReminderScout()

		entries, err := scout.Process(context.Background(), builtinSeed, seed.State{}, execWith(model))
		if err != nil {
			t.Fatalf("process(%q): %v", response, err)
		}
		if len(entries) != 0 {
			t.Fatalf("process(%q) entries = %v, want empty", response, entries)
		}
	}
}

func TestMuseEmitsMusing(t *testing.T) {
	model := &fakeModel{response: "Which plants share the monstera's watering rhythm?"}
	muse := NewMuse()

	entries, err := muse.Process(context.Background(), builtinSeed, seed.State{}, execWith(model))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries len = %d, want 1", len(entries))
	}
	if _, ok := entries[0].(MusingEntry); !ok {
		t.Fatalf("entry type = %T, want MusingEntry", entries[0])
	}
}

func TestDefaultsRegister(t *testing.T) {
	registry, err := NewRegistry(Defaults()...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if got := len(registry.Enabled()); got != 4 {
		t.Fatalf("enabled len = %d, want 4", got)
	}
}

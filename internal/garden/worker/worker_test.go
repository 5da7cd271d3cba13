package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/automation"
	"github.com/harms-haus/memoriae/internal/garden/category"
	"github.com/harms-haus/memoriae/internal/garden/dispatch"
	"github.com/harms-haus/memoriae/internal/garden/seed"
	"github.com/harms-haus/memoriae/internal/garden/sprout"
	"github.com/harms-haus/memoriae/internal/garden/storage"
)

type fakeStore struct {
	seeds       map[string]seed.Seed
	events      map[string][]seed.Event
	credentials map[string]storage.Credential

	succeeded []string
	failed    []failedMark
	dead      []deadMark
	attempts  []dispatch.Attempt
	batches   []storage.AutomationBatch
	ensured   []string

	claimQueue []dispatch.Job
	claimErr   error
	applyErr   error
}

type failedMark struct {
	jobID         string
	attemptCount  int
	nextAttemptAt time.Time
	lastError     string
}

type deadMark struct {
	jobID        string
	attemptCount int
	lastError    string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		seeds:       map[string]seed.Seed{},
		events:      map[string][]seed.Event{},
		credentials: map[string]storage.Credential{},
	}
}

func (f *fakeStore) ClaimNextJob(_ context.Context, _ time.Time, _ time.Duration) (dispatch.Job, bool, error) {
	if f.claimErr != nil {
		return dispatch.Job{}, false, f.claimErr
	}
	if len(f.claimQueue) == 0 {
		return dispatch.Job{}, false, nil
	}
	job := f.claimQueue[0]
	f.claimQueue = f.claimQueue[1:]
	return job, true, nil
}

func (f *fakeStore) MarkJobSucceeded(_ context.Context, jobID string, _ time.Time) error {
	f.succeeded = append(f.succeeded, jobID)
	return nil
}

func (f *fakeStore) MarkJobFailed(_ context.Context, jobID string, attemptCount int, nextAttemptAt time.Time, lastError string) error {
	f.failed = append(f.failed, failedMark{jobID, attemptCount, nextAttemptAt, lastError})
	return nil
}

func (f *fakeStore) MarkJobDead(_ context.Context, jobID string, attemptCount int, lastError string) error {
	f.dead = append(f.dead, deadMark{jobID, attemptCount, lastError})
	return nil
}

func (f *fakeStore) RecordJobAttempt(_ context.Context, attempt dispatch.Attempt) error {
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeStore) GetSeed(_ context.Context, seedID, ownerID string) (seed.Seed, error) {
	s, ok := f.seeds[seedID]
	if !ok || s.OwnerID != ownerID {
		return seed.Seed{}, seed.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) ListSeedEvents(_ context.Context, seedID string) ([]seed.Event, error) {
	return f.events[seedID], nil
}

func (f *fakeStore) GetModelCredential(_ context.Context, ownerID string) (storage.Credential, error) {
	c, ok := f.credentials[ownerID]
	if !ok {
		return storage.Credential{}, storage.ErrCredentialNotFound
	}
	return c, nil
}

func (f *fakeStore) EnsureCategoryPath(_ context.Context, ownerID, path string) (category.Category, bool, error) {
	f.ensured = append(f.ensured, path)
	return category.Category{OwnerID: ownerID, Path: path}, true, nil
}

func (f *fakeStore) ApplyAutomationBatch(_ context.Context, batch storage.AutomationBatch) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.batches = append(f.batches, batch)
	return nil
}

type staticModel struct{ reply string }

func (m staticModel) Complete(context.Context, string) (string, error) { return m.reply, nil }

func newTestProcessor(t *testing.T, store *fakeStore, automations ...automation.Automation) *Processor {
	t.Helper()
	registry, err := automation.NewRegistry(automations...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	factory := func(storage.Credential) (automation.TextModel, error) {
		return staticModel{reply: "ok"}, nil
	}
	p := New(store, registry, factory, Config{})
	counter := 0
	p.newID = func() (string, error) {
		counter++
		return fmt.Sprintf("id-%d", counter), nil
	}
	return p
}

func testJob(automationID string) dispatch.Job {
	return dispatch.Job{
		ID:           "job-1",
		SeedID:       "seed-1",
		AutomationID: automationID,
		OwnerID:      "owner-1",
		DedupeKey:    automationID + ":seed-1",
	}
}

func seedFixture(store *fakeStore) {
	store.seeds["seed-1"] = seed.Seed{ID: "seed-1", OwnerID: "owner-1", Content: "water ferns"}
	store.credentials["owner-1"] = storage.Credential{OwnerID: "owner-1", Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-test"}
}

func entryAutomation(id string, entries []automation.Entry, err error) automation.Automation {
	return automation.Automation{
		ID:      id,
		Name:    id,
		Enabled: true,
		Process: func(context.Context, seed.Seed, seed.State, automation.ExecContext) ([]automation.Entry, error) {
			return entries, err
		},
	}
}

func TestProcessJobPersistsBatchAndSucceeds(t *testing.T) {
	store := newFakeStore()
	seedFixture(store)
	event, err := seed.NewTagAddedEvent("seed-1", "tagger", "plants", time.Now().UTC())
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	p := newTestProcessor(t, store, entryAutomation("tagger", []automation.Entry{automation.EventEntry{Event: event}}, nil))

	p.processJob(context.Background(), testJob("tagger"))

	if len(store.succeeded) != 1 || store.succeeded[0] != "job-1" {
		t.Fatalf("succeeded = %v, want [job-1]", store.succeeded)
	}
	if len(store.batches) != 1 || len(store.batches[0].Events) != 1 {
		t.Fatalf("batches = %+v, want one event", store.batches)
	}
	if store.batches[0].Events[0].ID == "" {
		t.Fatal("persisted event has no assigned id")
	}
	if len(store.attempts) != 1 || store.attempts[0].Outcome != OutcomeSucceeded {
		t.Fatalf("attempts = %+v, want one succeeded", store.attempts)
	}
}

func TestMissingAutomationGoesDead(t *testing.T) {
	store := newFakeStore()
	seedFixture(store)
	p := newTestProcessor(t, store, entryAutomation("tagger", nil, nil))

	p.processJob(context.Background(), testJob("ghost"))

	if len(store.dead) != 1 {
		t.Fatalf("dead = %v, want one burial", store.dead)
	}
	if len(store.failed) != 0 {
		t.Fatalf("failed = %v, unregistered automation must not retry", store.failed)
	}
}

func TestDisabledAutomationSkips(t *testing.T) {
	store := newFakeStore()
	seedFixture(store)
	a := entryAutomation("tagger", nil, errors.New("must not run"))
	a.Enabled = false
	p := newTestProcessor(t, store, a)

	p.processJob(context.Background(), testJob("tagger"))

	if len(store.succeeded) != 1 {
		t.Fatalf("succeeded = %v, want disabled automation acked as no-op", store.succeeded)
	}
	if len(store.attempts) != 1 || store.attempts[0].Outcome != OutcomeSkipped {
		t.Fatalf("attempts = %+v, want skipped", store.attempts)
	}
}

func TestMissingSeedGoesDead(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(t, store, entryAutomation("tagger", nil, nil))

	p.processJob(context.Background(), testJob("tagger"))

	if len(store.dead) != 1 {
		t.Fatalf("dead = %v, want one burial for missing seed", store.dead)
	}
}

func TestMissingCredentialSkips(t *testing.T) {
	store := newFakeStore()
	store.seeds["seed-1"] = seed.Seed{ID: "seed-1", OwnerID: "owner-1", Content: "x"}
	p := newTestProcessor(t, store, entryAutomation("tagger", nil, errors.New("must not run")))

	p.processJob(context.Background(), testJob("tagger"))

	if len(store.succeeded) != 1 {
		t.Fatalf("succeeded = %v, want unconfigured owner acked as no-op", store.succeeded)
	}
	if len(store.attempts) != 1 || store.attempts[0].Outcome != OutcomeSkipped {
		t.Fatalf("attempts = %+v, want skipped", store.attempts)
	}
}

func TestInapplicableAutomationSkips(t *testing.T) {
	store := newFakeStore()
	seedFixture(store)
	a := entryAutomation("tagger", nil, errors.New("must not run"))
	a.Applies = func(seed.Seed, seed.State) bool { return false }
	p := newTestProcessor(t, store, a)

	p.processJob(context.Background(), testJob("tagger"))

	if len(store.attempts) != 1 || store.attempts[0].Outcome != OutcomeSkipped {
		t.Fatalf("attempts = %+v, want skipped", store.attempts)
	}
}

func TestRetryDelaysDoubleThenJobDies(t *testing.T) {
	store := newFakeStore()
	seedFixture(store)
	p := newTestProcessor(t, store, entryAutomation("tagger", nil, errors.New("model timeout")))
	now := time.Now().UTC()
	p.clock = func() time.Time { return now }

	job := testJob("tagger")
	for attempt := 0; attempt < 3; attempt++ {
		job.AttemptCount = attempt
		p.processJob(context.Background(), job)
	}

	if len(store.failed) != 2 {
		t.Fatalf("failed = %d marks, want 2 retries before burial", len(store.failed))
	}
	firstDelay := store.failed[0].nextAttemptAt.Sub(now)
	secondDelay := store.failed[1].nextAttemptAt.Sub(now)
	if firstDelay != defaultRetryBackoff {
		t.Fatalf("first delay = %v, want %v", firstDelay, defaultRetryBackoff)
	}
	if secondDelay != 2*defaultRetryBackoff {
		t.Fatalf("second delay = %v, want doubled base", secondDelay)
	}
	if len(store.dead) != 1 || store.dead[0].attemptCount != 3 {
		t.Fatalf("dead = %+v, want burial on third attempt", store.dead)
	}
}

func TestRetryDelayCapped(t *testing.T) {
	cfg := Config{RetryBackoff: time.Minute, RetryMaxDelay: 3 * time.Minute}.normalized()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 3 * time.Minute},
		{10, 3 * time.Minute},
	}
	for _, tc := range tests {
		if got := cfg.retryDelay(tc.attempt); got != tc.want {
			t.Fatalf("retryDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestCategoryEntryEnsuresPathBeforeEvent(t *testing.T) {
	store := newFakeStore()
	seedFixture(store)
	p := newTestProcessor(t, store, entryAutomation("categorizer", []automation.Entry{
		automation.CategoryEntry{Path: "home/garden"},
	}, nil))

	p.processJob(context.Background(), testJob("categorizer"))

	if len(store.ensured) != 1 || store.ensured[0] != "home/garden" {
		t.Fatalf("ensured = %v, want [home/garden]", store.ensured)
	}
	if len(store.batches) != 1 || len(store.batches[0].Events) != 1 {
		t.Fatalf("batches = %+v, want one assignment event", store.batches)
	}
	if store.batches[0].Events[0].Type != seed.OpCategoryAssigned {
		t.Fatalf("event type = %s, want category.assigned", store.batches[0].Events[0].Type)
	}
}

func TestReminderAndMusingEntriesTranslate(t *testing.T) {
	store := newFakeStore()
	seedFixture(store)
	dueAt := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	p := newTestProcessor(t, store, entryAutomation("scout", []automation.Entry{
		automation.ReminderEntry{DueAt: dueAt, Message: "repot the fern"},
		automation.MusingEntry{Text: "what about moss?"},
	}, nil))

	p.processJob(context.Background(), testJob("scout"))

	if len(store.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(store.batches))
	}
	batch := store.batches[0]
	if len(batch.Reminders) != 1 || len(batch.Musings) != 1 {
		t.Fatalf("batch = %+v, want one reminder and one musing", batch)
	}
	reminder := batch.Reminders[0]
	if reminder.Sprout.Kind != sprout.KindReminder || reminder.Transaction.SproutID != reminder.Sprout.ID {
		t.Fatalf("reminder = %+v, want transaction bound to its sprout", reminder)
	}
	if reminder.Transaction.Type != sprout.TxReminderCreated {
		t.Fatalf("transaction type = %s, want reminder.created", reminder.Transaction.Type)
	}
	musing := batch.Musings[0]
	if musing.Sprout.Kind != sprout.KindMusing || musing.Musing.SproutID != musing.Sprout.ID {
		t.Fatalf("musing = %+v, want projection bound to its sprout", musing)
	}
}

func TestPersistFailureRetries(t *testing.T) {
	store := newFakeStore()
	seedFixture(store)
	store.applyErr = errors.New("disk full")
	event, err := seed.NewTagAddedEvent("seed-1", "tagger", "plants", time.Now().UTC())
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	p := newTestProcessor(t, store, entryAutomation("tagger", []automation.Entry{automation.EventEntry{Event: event}}, nil))

	p.processJob(context.Background(), testJob("tagger"))

	if len(store.failed) != 1 {
		t.Fatalf("failed = %v, want one retry mark", store.failed)
	}
	if len(store.attempts) != 1 || store.attempts[0].Outcome != OutcomeRetried {
		t.Fatalf("attempts = %+v, want retried", store.attempts)
	}
}

func TestProcessNextReportsClaimState(t *testing.T) {
	store := newFakeStore()
	seedFixture(store)
	p := newTestProcessor(t, store, entryAutomation("tagger", nil, nil))

	claimed, err := p.ProcessNext(context.Background())
	if err != nil || claimed {
		t.Fatalf("empty queue = (%v, %v), want (false, nil)", claimed, err)
	}

	store.claimQueue = []dispatch.Job{testJob("tagger")}
	claimed, err = p.ProcessNext(context.Background())
	if err != nil || !claimed {
		t.Fatalf("claim = (%v, %v), want (true, nil)", claimed, err)
	}

	store.claimErr = errors.New("db locked")
	if _, err := p.ProcessNext(context.Background()); err == nil {
		t.Fatal("claim error not surfaced")
	}
}

package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/harms-haus/memoriae/internal/garden/seed"
)

type fakePressureStore struct {
	totals  map[string]int
	addErr  error
	resets  []string
	history []int
}

func newFakePressureStore() *fakePressureStore {
	return &fakePressureStore{totals: map[string]int{}}
}

func (f *fakePressureStore) AddPressure(_ context.Context, seedID, automationID string, delta int) (int, error) {
	if f.addErr != nil {
		return 0, f.addErr
	}
	key := seedID + "/" + automationID
	total := f.totals[key] + delta
	if total > MaxPressure {
		total = MaxPressure
	}
	f.totals[key] = total
	f.history = append(f.history, total)
	return total, nil
}

func (f *fakePressureStore) ResetPressure(_ context.Context, seedID, automationID string) error {
	key := seedID + "/" + automationID
	f.totals[key] = 0
	f.resets = append(f.resets, key)
	return nil
}

type fakeEnqueuer struct {
	enqueued []string
	err      error
}

func (f *fakeEnqueuer) EnqueuePressure(_ context.Context, seedID, automationID, ownerID string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, automationID+":"+seedID+":"+ownerID)
	return nil
}

func engineFixture(t *testing.T, store PressureStore, enqueuer JobEnqueuer) *Engine {
	t.Helper()
	registry, err := NewRegistry(Automation{
		ID:                "categorizer",
		Enabled:           true,
		PressureThreshold: 40,
		PressureWeights: map[ChangeKind]int{
			ChangeCategoryRenamed: 25,
		},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	engine, err := NewEngine(registry, store, enqueuer)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

var engineSeed = seed.Seed{ID: "seed-1", OwnerID: "owner-1"}

func TestEngineAccumulatesBelowThreshold(t *testing.T) {
	store := newFakePressureStore()
	enqueuer := &fakeEnqueuer{}
	engine := engineFixture(t, store, enqueuer)

	err := engine.Observe(context.Background(), engineSeed, seed.State{}, []Change{
		{Kind: ChangeCategoryRenamed, Path: "home"},
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(enqueuer.enqueued) != 0 {
		t.Fatalf("enqueued = %v, want none below threshold", enqueuer.enqueued)
	}
	if store.totals["seed-1/categorizer"] != 25 {
		t.Fatalf("total = %d, want 25", store.totals["seed-1/categorizer"])
	}
}

func TestEngineEnqueuesAndResetsAtThreshold(t *testing.T) {
	store := newFakePressureStore()
	enqueuer := &fakeEnqueuer{}
	engine := engineFixture(t, store, enqueuer)
	ctx := context.Background()

	// Two renames per batch: 25 + 25 = 50 >= 40.
	err := engine.Observe(ctx, engineSeed, seed.State{}, []Change{
		{Kind: ChangeCategoryRenamed, Path: "home"},
		{Kind: ChangeCategoryRenamed, Path: "work"},
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(enqueuer.enqueued) != 1 {
		t.Fatalf("enqueued = %v, want one job", enqueuer.enqueued)
	}
	if enqueuer.enqueued[0] != "categorizer:seed-1:owner-1" {
		t.Fatalf("enqueued[0] = %q", enqueuer.enqueued[0])
	}
	if store.totals["seed-1/categorizer"] != 0 {
		t.Fatalf("total after reset = %d, want 0", store.totals["seed-1/categorizer"])
	}
}

func TestEngineSkipsZeroContribution(t *testing.T) {
	store := newFakePressureStore()
	enqueuer := &fakeEnqueuer{}
	engine := engineFixture(t, store, enqueuer)

	err := engine.Observe(context.Background(), engineSeed, seed.State{}, []Change{
		{Kind: ChangeCategoryMoved, Path: "home"},
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(store.history) != 0 {
		t.Fatalf("writes = %v, want none for zero delta", store.history)
	}
}

func TestEngineIsolatesEnqueueFailure(t *testing.T) {
	store := newFakePressureStore()
	enqueuer := &fakeEnqueuer{err: errors.New("queue down")}
	engine := engineFixture(t, store, enqueuer)

	err := engine.Observe(context.Background(), engineSeed, seed.State{}, []Change{
		{Kind: ChangeCategoryRenamed, Path: "home"},
		{Kind: ChangeCategoryRenamed, Path: "work"},
	})
	if err == nil {
		t.Fatal("expected enqueue failure to surface")
	}
	// Pressure is not reset when the enqueue fails, so the next batch
	// retriggers.
	if store.totals["seed-1/categorizer"] != 50 {
		t.Fatalf("total = %d, want 50 retained", store.totals["seed-1/categorizer"])
	}
}

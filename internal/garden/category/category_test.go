package category

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/automation"
	"github.com/harms-haus/memoriae/internal/garden/seed"
)

type fakeCategoryStore struct {
	paths map[string]bool // ownerID + "\x00" + path
}

func newFakeCategoryStore() *fakeCategoryStore {
	return &fakeCategoryStore{paths: map[string]bool{}}
}

func (f *fakeCategoryStore) key(ownerID, path string) string { return ownerID + "\x00" + path }

func (f *fakeCategoryStore) EnsureCategoryPath(_ context.Context, ownerID, path string) (Category, bool, error) {
	key := f.key(ownerID, path)
	if f.paths[key] {
		return Category{OwnerID: ownerID, Path: path}, false, nil
	}
	f.paths[key] = true
	return Category{OwnerID: ownerID, Path: path, CreatedAt: time.Now()}, true, nil
}

func (f *fakeCategoryStore) ListCategories(_ context.Context, ownerID string) ([]Category, error) {
	var out []Category
	for key := range f.paths {
		if len(key) > len(ownerID) && key[:len(ownerID)] == ownerID {
			out = append(out, Category{OwnerID: ownerID, Path: key[len(ownerID)+1:]})
		}
	}
	return out, nil
}

func (f *fakeCategoryStore) RepathCategory(_ context.Context, ownerID, oldPath, newPath string) error {
	key := f.key(ownerID, oldPath)
	if !f.paths[key] {
		return ErrNotFound
	}
	delete(f.paths, key)
	f.paths[f.key(ownerID, newPath)] = true
	return nil
}

func (f *fakeCategoryStore) RemoveCategory(_ context.Context, ownerID, path string) error {
	key := f.key(ownerID, path)
	if !f.paths[key] {
		return ErrNotFound
	}
	delete(f.paths, key)
	return nil
}

type fakeSeedSource struct {
	seeds  []seed.Seed
	events map[string][]seed.Event
}

func (f *fakeSeedSource) ListSeedsByOwner(_ context.Context, ownerID string) ([]seed.Seed, error) {
	var out []seed.Seed
	for _, s := range f.seeds {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSeedSource) ListSeedEvents(_ context.Context, seedID string) ([]seed.Event, error) {
	return f.events[seedID], nil
}

type recordingObserver struct {
	calls []automation.Change
	seeds []string
	err   error
}

func (r *recordingObserver) Observe(_ context.Context, s seed.Seed, _ seed.State, changes []automation.Change) error {
	r.calls = append(r.calls, changes...)
	r.seeds = append(r.seeds, s.ID)
	return r.err
}

func TestEnsureObservesOnlyOnCreate(t *testing.T) {
	store := newFakeCategoryStore()
	observer := &recordingObserver{}
	seeds := &fakeSeedSource{
		seeds:  []seed.Seed{{ID: "seed-1", OwnerID: "owner-1"}},
		events: map[string][]seed.Event{},
	}
	svc := NewService(store, seeds, observer)
	ctx := context.Background()

	if _, err := svc.Ensure(ctx, "owner-1", "home/garden"); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if len(observer.calls) != 1 || observer.calls[0].Kind != automation.ChangeCategoryChildAdded {
		t.Fatalf("calls = %v, want one child_added", observer.calls)
	}

	if _, err := svc.Ensure(ctx, "owner-1", "home/garden"); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if len(observer.calls) != 1 {
		t.Fatalf("calls = %d, want still 1 (idempotent ensure)", len(observer.calls))
	}
}

func TestRenameFansOutAcrossOwnersSeeds(t *testing.T) {
	store := newFakeCategoryStore()
	if _, _, err := store.EnsureCategoryPath(context.Background(), "owner-1", "home/garden"); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	observer := &recordingObserver{}
	seeds := &fakeSeedSource{
		seeds: []seed.Seed{
			{ID: "seed-1", OwnerID: "owner-1"},
			{ID: "seed-2", OwnerID: "owner-1"},
			{ID: "seed-3", OwnerID: "owner-2"},
		},
		events: map[string][]seed.Event{},
	}
	svc := NewService(store, seeds, observer)

	if err := svc.Rename(context.Background(), "owner-1", "home/garden", "yard"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if len(observer.seeds) != 2 {
		t.Fatalf("observed seeds = %v, want owner-1's two seeds", observer.seeds)
	}
	for _, change := range observer.calls {
		if change.Kind != automation.ChangeCategoryRenamed {
			t.Fatalf("change kind = %s, want renamed", change.Kind)
		}
	}
}

func TestMoveRewritesPath(t *testing.T) {
	store := newFakeCategoryStore()
	ctx := context.Background()
	if _, _, err := store.EnsureCategoryPath(ctx, "owner-1", "home/garden"); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	svc := NewService(store, &fakeSeedSource{events: map[string][]seed.Event{}}, &recordingObserver{})

	if err := svc.Move(ctx, "owner-1", "home/garden", "outdoors"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !store.paths[store.key("owner-1", "outdoors/garden")] {
		t.Fatalf("paths = %v, want outdoors/garden", store.paths)
	}
}

func TestRemoveMissingPath(t *testing.T) {
	svc := NewService(newFakeCategoryStore(), nil, nil)
	err := svc.Remove(context.Background(), "owner-1", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestValidation(t *testing.T) {
	svc := NewService(newFakeCategoryStore(), nil, nil)
	ctx := context.Background()

	if _, err := svc.Ensure(ctx, " ", "home"); !errors.Is(err, ErrOwnerIDRequired) {
		t.Fatalf("err = %v, want ErrOwnerIDRequired", err)
	}
	if _, err := svc.Ensure(ctx, "owner-1", " / "); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("err = %v, want ErrPathRequired", err)
	}
}

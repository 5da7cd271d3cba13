// Package category maintains the owner-scoped category tree seeds are filed
// under, and feeds structural changes to the pressure engine so automations
// whose conclusions went stale get re-evaluated.
package category

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/automation"
	"github.com/harms-haus/memoriae/internal/garden/seed"
)

var (
	// ErrNotFound indicates a category path was not found.
	ErrNotFound = errors.New("category not found")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("category store is not configured")
	// ErrOwnerIDRequired indicates owner identity is required.
	ErrOwnerIDRequired = errors.New("owner id is required")
	// ErrPathRequired indicates a category path is required.
	ErrPathRequired = errors.New("category path is required")
)

// Category is one owner-scoped category path.
type Category struct {
	ID        string
	OwnerID   string
	Path      string
	CreatedAt time.Time
}

// Store is the category tree persistence boundary.
type Store interface {
	// EnsureCategoryPath creates the path if missing (check-then-create,
	// idempotent on retry) and reports whether a row was created.
	EnsureCategoryPath(ctx context.Context, ownerID, path string) (Category, bool, error)
	ListCategories(ctx context.Context, ownerID string) ([]Category, error)
	// RepathCategory rewrites one path and the paths of its descendants.
	RepathCategory(ctx context.Context, ownerID, oldPath, newPath string) error
	RemoveCategory(ctx context.Context, ownerID, path string) error
}

// SeedSource lists an owner's seeds and their logs so structural changes can
// be pressured against each seed's current state.
type SeedSource interface {
	ListSeedsByOwner(ctx context.Context, ownerID string) ([]seed.Seed, error)
	ListSeedEvents(ctx context.Context, seedID string) ([]seed.Event, error)
}

// Observer receives structural change sets, one seed at a time.
type Observer interface {
	Observe(ctx context.Context, s seed.Seed, state seed.State, changes []automation.Change) error
}

// Service orchestrates category tree mutations and pressure fan-out.
type Service struct {
	store    Store
	seeds    SeedSource
	observer Observer
}

// NewService constructs category use-cases. The observer may be nil when no
// pressure engine is wired (e.g. in import tooling).
func NewService(store Store, seeds SeedSource, observer Observer) *Service {
	return &Service{store: store, seeds: seeds, observer: observer}
}

// Ensure creates a category path if missing.
func (s *Service) Ensure(ctx context.Context, ownerID, path string) (Category, error) {
	if s == nil || s.store == nil {
		return Category{}, ErrStoreNotConfigured
	}
	ownerID, path, err := normalizeInput(ownerID, path)
	if err != nil {
		return Category{}, err
	}
	c, created, err := s.store.EnsureCategoryPath(ctx, ownerID, path)
	if err != nil {
		return Category{}, err
	}
	if created {
		return c, s.observe(ctx, ownerID, []automation.Change{
			{Kind: automation.ChangeCategoryChildAdded, Path: path},
		})
	}
	return c, nil
}

// Rename rewrites the last segment of a path, keeping its position in the tree.
func (s *Service) Rename(ctx context.Context, ownerID, path, newName string) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	ownerID, path, err := normalizeInput(ownerID, path)
	if err != nil {
		return err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrPathRequired
	}
	parent := ""
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		parent = path[:idx+1]
	}
	newPath := parent + newName
	if err := s.store.RepathCategory(ctx, ownerID, path, newPath); err != nil {
		return err
	}
	return s.observe(ctx, ownerID, []automation.Change{
		{Kind: automation.ChangeCategoryRenamed, Path: path},
	})
}

// Move reparents a path under a new parent.
func (s *Service) Move(ctx context.Context, ownerID, path, newParent string) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	ownerID, path, err := normalizeInput(ownerID, path)
	if err != nil {
		return err
	}
	name := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		name = path[idx+1:]
	}
	newParent = strings.Trim(strings.TrimSpace(newParent), "/")
	newPath := name
	if newParent != "" {
		newPath = newParent + "/" + name
	}
	if err := s.store.RepathCategory(ctx, ownerID, path, newPath); err != nil {
		return err
	}
	return s.observe(ctx, ownerID, []automation.Change{
		{Kind: automation.ChangeCategoryMoved, Path: path},
	})
}

// Remove deletes a path and its descendants.
func (s *Service) Remove(ctx context.Context, ownerID, path string) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	ownerID, path, err := normalizeInput(ownerID, path)
	if err != nil {
		return err
	}
	if err := s.store.RemoveCategory(ctx, ownerID, path); err != nil {
		return err
	}
	return s.observe(ctx, ownerID, []automation.Change{
		{Kind: automation.ChangeCategoryRemoved, Path: path},
	})
}

// observe fans the change set across every one of the owner's seeds,
// recomputing each seed's state so relevance checks see current data.
// Per-seed failures are collected without aborting the remaining seeds.
func (s *Service) observe(ctx context.Context, ownerID string, changes []automation.Change) error {
	if s.observer == nil || s.seeds == nil {
		return nil
	}
	seeds, err := s.seeds.ListSeedsByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("list seeds for pressure fan-out: %w", err)
	}
	var errs []error
	for _, base := range seeds {
		events, err := s.seeds.ListSeedEvents(ctx, base.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", base.ID, err))
			continue
		}
		state := seed.ComputeState(base, events)
		if err := s.observer.Observe(ctx, base, state, changes); err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", base.ID, err))
		}
	}
	return errors.Join(errs...)
}

func normalizeInput(ownerID, path string) (string, string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", "", ErrOwnerIDRequired
	}
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return "", "", ErrPathRequired
	}
	return ownerID, path, nil
}

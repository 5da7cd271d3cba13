package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/harms-haus/memoriae/internal/garden/seed"
)

var (
	// ErrRegistryRequired indicates the engine is missing its catalog.
	ErrRegistryRequired = errors.New("automation registry is required")
	// ErrPressureStoreRequired indicates the engine is missing persistence.
	ErrPressureStoreRequired = errors.New("pressure store is required")
	// ErrEnqueuerRequired indicates the engine cannot dispatch jobs.
	ErrEnqueuerRequired = errors.New("job enqueuer is required")
)

// PressureStore persists accumulated pressure per (seed, automation) pair.
type PressureStore interface {
	// AddPressure adds a non-negative delta and returns the new total,
	// clamped to MaxPressure.
	AddPressure(ctx context.Context, seedID, automationID string, delta int) (int, error)
	// ResetPressure zeroes the accumulator after a job was dispatched.
	ResetPressure(ctx context.Context, seedID, automationID string) error
}

// JobEnqueuer hands re-evaluation work to the dispatcher.
type JobEnqueuer interface {
	EnqueuePressure(ctx context.Context, seedID, automationID, ownerID string) error
}

// Engine accumulates staleness pressure and dispatches re-evaluation jobs
// when an automation's threshold is crossed. It decouples "this automation's
// conclusions may be stale" from the create/update hook.
type Engine struct {
	registry *Registry
	store    PressureStore
	enqueuer JobEnqueuer
}

// NewEngine constructs a pressure engine.
func NewEngine(registry *Registry, store PressureStore, enqueuer JobEnqueuer) (*Engine, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if store == nil {
		return nil, ErrPressureStoreRequired
	}
	if enqueuer == nil {
		return nil, ErrEnqueuerRequired
	}
	return &Engine{registry: registry, store: store, enqueuer: enqueuer}, nil
}

// Observe feeds one structural change set through every enabled automation
// for one seed. Automations whose accumulated pressure crosses their
// threshold get a re-evaluation job enqueued and their accumulator reset.
// Failures are isolated per automation (collect-and-continue).
func (e *Engine) Observe(ctx context.Context, s seed.Seed, state seed.State, changes []Change) error {
	if e == nil {
		return ErrRegistryRequired
	}
	if len(changes) == 0 {
		return nil
	}

	var errs []error
	for _, a := range e.registry.Enabled() {
		delta := Pressure(a, state, changes)
		if delta == 0 {
			continue
		}
		total, err := e.store.AddPressure(ctx, s.ID, a.ID, delta)
		if err != nil {
			errs = append(errs, fmt.Errorf("automation %s: add pressure: %w", a.ID, err))
			continue
		}
		if a.PressureThreshold <= 0 || total < a.PressureThreshold {
			continue
		}
		if err := e.enqueuer.EnqueuePressure(ctx, s.ID, a.ID, s.OwnerID); err != nil {
			errs = append(errs, fmt.Errorf("automation %s: enqueue: %w", a.ID, err))
			continue
		}
		if err := e.store.ResetPressure(ctx, s.ID, a.ID); err != nil {
			errs = append(errs, fmt.Errorf("automation %s: reset pressure: %w", a.ID, err))
		}
	}
	return errors.Join(errs...)
}

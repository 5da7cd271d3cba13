package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/automation"
	"github.com/harms-haus/memoriae/internal/platform/id"
)

var (
	// ErrStoreNotConfigured indicates the dispatcher is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("job store is not configured")
	// ErrCatalogNotConfigured indicates the dispatcher is missing the automation catalog.
	ErrCatalogNotConfigured = errors.New("automation catalog is not configured")
	// ErrSeedIDRequired indicates a seed id is required.
	ErrSeedIDRequired = errors.New("seed id is required")
	// ErrAutomationIDRequired indicates an automation id is required.
	ErrAutomationIDRequired = errors.New("automation id is required")
	// ErrOwnerIDRequired indicates owner identity is required.
	ErrOwnerIDRequired = errors.New("owner id is required")
)

// Catalog is the registry surface the dispatcher fans out over.
type Catalog interface {
	Enabled() []automation.Automation
}

// Dispatcher enqueues automation-run requests.
type Dispatcher struct {
	store   Store
	catalog Catalog
	clock   func() time.Time
	newID   func() (string, error)
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(store Store, catalog Catalog, clock func() time.Time, newID func() (string, error)) *Dispatcher {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Dispatcher{store: store, catalog: catalog, clock: clock, newID: newID}
}

// EnqueueInput describes one enqueue request.
type EnqueueInput struct {
	SeedID       string
	AutomationID string
	OwnerID      string
	// Priority defaults to PriorityBackground, or PriorityManual when
	// Manual is set.
	Priority int
	// Manual salts the dedupe key so the run executes independently of any
	// pending automatic job for the same pair.
	Manual bool
}

// DedupeKey derives the queue identity for an (automation, seed) pair. The
// optional salt makes a manual run's key unique.
func DedupeKey(automationID, seedID, salt string) string {
	key := automationID + ":" + seedID
	if salt != "" {
		key += ":" + salt
	}
	return key
}

// Enqueue inserts one job. A second enqueue for the same (automation, seed)
// pair before the first runs collapses into the existing job.
func (d *Dispatcher) Enqueue(ctx context.Context, input EnqueueInput) (Job, error) {
	if d == nil || d.store == nil {
		return Job{}, ErrStoreNotConfigured
	}
	input.SeedID = strings.TrimSpace(input.SeedID)
	if input.SeedID == "" {
		return Job{}, ErrSeedIDRequired
	}
	input.AutomationID = strings.TrimSpace(input.AutomationID)
	if input.AutomationID == "" {
		return Job{}, ErrAutomationIDRequired
	}
	input.OwnerID = strings.TrimSpace(input.OwnerID)
	if input.OwnerID == "" {
		return Job{}, ErrOwnerIDRequired
	}

	priority := input.Priority
	if priority <= 0 {
		priority = PriorityBackground
		if input.Manual {
			priority = PriorityManual
		}
	}

	salt := ""
	if input.Manual {
		var err error
		salt, err = d.newID()
		if err != nil {
			return Job{}, err
		}
	}

	jobID, err := d.newID()
	if err != nil {
		return Job{}, err
	}
	now := d.clock().UTC()
	job := Job{
		ID:            jobID,
		SeedID:        input.SeedID,
		AutomationID:  input.AutomationID,
		OwnerID:       input.OwnerID,
		Priority:      priority,
		DedupeKey:     DedupeKey(input.AutomationID, input.SeedID, salt),
		Manual:        input.Manual,
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	stored, _, err := d.store.EnqueueJob(ctx, job)
	if err != nil {
		return Job{}, fmt.Errorf("enqueue job %s: %w", job.DedupeKey, err)
	}
	return stored, nil
}

// EnqueueAllEnabledFor fans out one background job per enabled automation at
// seed creation time. One automation's enqueue failure does not block the
// others; collected failures are joined. Callers on the creation path treat
// the result as best-effort and must not block creation on it.
func (d *Dispatcher) EnqueueAllEnabledFor(ctx context.Context, seedID, ownerID string) ([]Job, error) {
	if d == nil || d.store == nil {
		return nil, ErrStoreNotConfigured
	}
	if d.catalog == nil {
		return nil, ErrCatalogNotConfigured
	}

	var (
		jobs []Job
		errs []error
	)
	for _, a := range d.catalog.Enabled() {
		job, err := d.Enqueue(ctx, EnqueueInput{
			SeedID:       seedID,
			AutomationID: a.ID,
			OwnerID:      ownerID,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("automation %s: %w", a.ID, err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Join(errs...)
}

// EnqueuePressure satisfies the pressure engine's enqueuer interface with a
// background-priority automatic run.
func (d *Dispatcher) EnqueuePressure(ctx context.Context, seedID, automationID, ownerID string) error {
	_, err := d.Enqueue(ctx, EnqueueInput{
		SeedID:       seedID,
		AutomationID: automationID,
		OwnerID:      ownerID,
	})
	return err
}

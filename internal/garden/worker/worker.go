// Package worker runs the background job loop: claim, execute, persist, ack.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/harms-haus/memoriae/internal/garden/automation"
	"github.com/harms-haus/memoriae/internal/garden/category"
	"github.com/harms-haus/memoriae/internal/garden/dispatch"
	"github.com/harms-haus/memoriae/internal/garden/seed"
	"github.com/harms-haus/memoriae/internal/garden/sprout"
	"github.com/harms-haus/memoriae/internal/garden/storage"
	"github.com/harms-haus/memoriae/internal/platform/id"
)

// Attempt outcomes recorded for queue diagnostics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeRetried   = "retried"
	OutcomeDead      = "dead"
)

// Config controls poll cadence, lease duration, and the retry policy.
type Config struct {
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	JobTimeout    time.Duration
}

const (
	defaultPollInterval  = time.Second
	defaultLeaseTTL      = 2 * time.Minute
	defaultMaxAttempts   = 3
	defaultRetryBackoff  = 10 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
	defaultJobTimeout    = 2 * time.Minute
)

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}
	return c
}

// retryDelay doubles the base delay per completed attempt, capped at the
// configured ceiling.
func (c Config) retryDelay(attemptCount int) time.Duration {
	delay := c.RetryBackoff
	for i := 1; i < attemptCount; i++ {
		delay *= 2
		if delay >= c.RetryMaxDelay {
			return c.RetryMaxDelay
		}
	}
	if delay > c.RetryMaxDelay {
		return c.RetryMaxDelay
	}
	return delay
}

// Store is the persistence surface the processor needs.
type Store interface {
	ClaimNextJob(ctx context.Context, now time.Time, lease time.Duration) (dispatch.Job, bool, error)
	MarkJobSucceeded(ctx context.Context, jobID string, finishedAt time.Time) error
	MarkJobFailed(ctx context.Context, jobID string, attemptCount int, nextAttemptAt time.Time, lastError string) error
	MarkJobDead(ctx context.Context, jobID string, attemptCount int, lastError string) error
	RecordJobAttempt(ctx context.Context, attempt dispatch.Attempt) error

	GetSeed(ctx context.Context, seedID, ownerID string) (seed.Seed, error)
	ListSeedEvents(ctx context.Context, seedID string) ([]seed.Event, error)
	GetModelCredential(ctx context.Context, ownerID string) (storage.Credential, error)
	EnsureCategoryPath(ctx context.Context, ownerID, path string) (category.Category, bool, error)
	ApplyAutomationBatch(ctx context.Context, batch storage.AutomationBatch) error
}

// ModelFactory builds a text model client from one owner's credential.
type ModelFactory func(credential storage.Credential) (automation.TextModel, error)

// Processor claims queued jobs and executes their automations.
type Processor struct {
	store    Store
	registry *automation.Registry
	models   ModelFactory
	cfg      Config
	clock    func() time.Time
	newID    func() (string, error)
}

// New builds a processor. The model factory resolves each owner's
// credential into a client at execution time.
func New(store Store, registry *automation.Registry, models ModelFactory, cfg Config) *Processor {
	return &Processor{
		store:    store,
		registry: registry,
		models:   models,
		cfg:      cfg.normalized(),
		clock:    func() time.Time { return time.Now().UTC() },
		newID:    id.NewID,
	}
}

// Run polls for jobs until the context is canceled. Claim errors are spaced
// out with exponential backoff so a broken store does not spin the loop.
func (p *Processor) Run(ctx context.Context) error {
	if p == nil || p.store == nil {
		return errors.New("worker store is not configured")
	}
	if p.registry == nil {
		return automation.ErrRegistryRequired
	}

	claimBackoff := backoff.NewExponentialBackOff()
	claimBackoff.InitialInterval = p.cfg.PollInterval
	claimBackoff.MaxInterval = p.cfg.RetryMaxDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claimed, err := p.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("worker: claim job: %v", err)
			if err := sleepCtx(ctx, claimBackoff.NextBackOff()); err != nil {
				return err
			}
			continue
		}
		claimBackoff.Reset()
		if !claimed {
			if err := sleepCtx(ctx, p.cfg.PollInterval); err != nil {
				return err
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ProcessNext claims and executes at most one job, reporting whether one was
// claimed. Execution failures are absorbed into the job's retry state; only
// claim errors surface to the caller.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	job, ok, err := p.store.ClaimNextJob(ctx, p.clock(), p.cfg.LeaseTTL)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	p.processJob(ctx, job)
	return true, nil
}

func (p *Processor) processJob(ctx context.Context, job dispatch.Job) {
	a, registered := p.registry.ByID(job.AutomationID)
	if !registered {
		p.bury(ctx, job, fmt.Sprintf("automation %s is not registered", job.AutomationID))
		return
	}
	if !a.Enabled {
		p.skip(ctx, job, "automation disabled")
		return
	}

	base, err := p.store.GetSeed(ctx, job.SeedID, job.OwnerID)
	if errors.Is(err, seed.ErrNotFound) {
		p.bury(ctx, job, fmt.Sprintf("seed %s not found", job.SeedID))
		return
	}
	if err != nil {
		p.retry(ctx, job, fmt.Errorf("load seed: %w", err))
		return
	}

	credential, err := p.store.GetModelCredential(ctx, job.OwnerID)
	if errors.Is(err, storage.ErrCredentialNotFound) {
		p.skip(ctx, job, "owner has no model credential")
		return
	}
	if err != nil {
		p.retry(ctx, job, fmt.Errorf("load credential: %w", err))
		return
	}

	events, err := p.store.ListSeedEvents(ctx, job.SeedID)
	if err != nil {
		p.retry(ctx, job, fmt.Errorf("load seed events: %w", err))
		return
	}
	state := seed.ComputeState(base, events)

	if a.Applies != nil && !a.Applies(base, state) {
		p.skip(ctx, job, "automation does not apply")
		return
	}

	model, err := p.models(credential)
	if err != nil {
		p.retry(ctx, job, fmt.Errorf("build model client: %w", err))
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	entries, err := a.Process(execCtx, base, state, automation.ExecContext{
		OwnerID: job.OwnerID,
		Model:   credential.Model,
		Text:    model,
	})
	cancel()
	if err != nil {
		p.retry(ctx, job, fmt.Errorf("process: %w", err))
		return
	}

	batch, err := p.buildBatch(ctx, job, entries)
	if err != nil {
		p.retry(ctx, job, fmt.Errorf("build batch: %w", err))
		return
	}
	if err := p.store.ApplyAutomationBatch(ctx, batch); err != nil {
		p.retry(ctx, job, fmt.Errorf("persist batch: %w", err))
		return
	}

	p.succeed(ctx, job, OutcomeSucceeded, "")
}

// buildBatch translates automation entries into persistable records,
// assigning ids and timestamps. Category assignments ensure their path
// exists first so the log entry never references a missing category.
func (p *Processor) buildBatch(ctx context.Context, job dispatch.Job, entries []automation.Entry) (storage.AutomationBatch, error) {
	now := p.clock()
	var batch storage.AutomationBatch
	for _, entry := range entries {
		switch e := entry.(type) {
		case automation.EventEntry:
			event := e.Event
			if event.ID == "" {
				eventID, err := p.newID()
				if err != nil {
					return storage.AutomationBatch{}, fmt.Errorf("new event id: %w", err)
				}
				event.ID = eventID
			}
			if event.SeedID == "" {
				event.SeedID = job.SeedID
			}
			if event.CreatedAt.IsZero() {
				event.CreatedAt = now
			}
			batch.Events = append(batch.Events, event)
		case automation.CategoryEntry:
			if _, _, err := p.store.EnsureCategoryPath(ctx, job.OwnerID, e.Path); err != nil {
				return storage.AutomationBatch{}, fmt.Errorf("ensure category %s: %w", e.Path, err)
			}
			event, err := seed.NewCategoryAssignedEvent(job.SeedID, job.AutomationID, e.Path, now)
			if err != nil {
				return storage.AutomationBatch{}, fmt.Errorf("build category event: %w", err)
			}
			eventID, err := p.newID()
			if err != nil {
				return storage.AutomationBatch{}, fmt.Errorf("new event id: %w", err)
			}
			event.ID = eventID
			batch.Events = append(batch.Events, event)
		case automation.ReminderEntry:
			reminder, err := p.buildReminder(job, e, now)
			if err != nil {
				return storage.AutomationBatch{}, err
			}
			batch.Reminders = append(batch.Reminders, reminder)
		case automation.MusingEntry:
			sproutID, err := p.newID()
			if err != nil {
				return storage.AutomationBatch{}, fmt.Errorf("new sprout id: %w", err)
			}
			batch.Musings = append(batch.Musings, storage.NewMusing{
				Sprout: sprout.Sprout{
					ID:        sproutID,
					SeedID:    job.SeedID,
					OwnerID:   job.OwnerID,
					Kind:      sprout.KindMusing,
					CreatedAt: now,
				},
				Musing: sprout.Musing{SproutID: sproutID, Text: e.Text},
			})
		default:
			return storage.AutomationBatch{}, fmt.Errorf("unsupported automation entry %T", entry)
		}
	}
	return batch, nil
}

func (p *Processor) buildReminder(job dispatch.Job, entry automation.ReminderEntry, now time.Time) (storage.NewReminder, error) {
	sproutID, err := p.newID()
	if err != nil {
		return storage.NewReminder{}, fmt.Errorf("new sprout id: %w", err)
	}
	transactionID, err := p.newID()
	if err != nil {
		return storage.NewReminder{}, fmt.Errorf("new transaction id: %w", err)
	}
	payload, err := json.Marshal(sprout.CreatedPayload{DueAt: entry.DueAt, Message: entry.Message})
	if err != nil {
		return storage.NewReminder{}, fmt.Errorf("encode reminder payload: %w", err)
	}
	return storage.NewReminder{
		Sprout: sprout.Sprout{
			ID:        sproutID,
			SeedID:    job.SeedID,
			OwnerID:   job.OwnerID,
			Kind:      sprout.KindReminder,
			CreatedAt: now,
		},
		Transaction: sprout.Transaction{
			ID:          transactionID,
			SproutID:    sproutID,
			Type:        sprout.TxReminderCreated,
			PayloadJSON: payload,
			CreatedAt:   now,
		},
	}, nil
}

// succeed finishes a job. Skips are successes with an explanatory outcome.
func (p *Processor) succeed(ctx context.Context, job dispatch.Job, outcome, note string) {
	now := p.clock()
	if err := p.store.MarkJobSucceeded(ctx, job.ID, now); err != nil {
		log.Printf("worker: mark job %s succeeded: %v", job.ID, err)
		return
	}
	p.record(ctx, job, outcome, job.AttemptCount+1, note)
}

func (p *Processor) skip(ctx context.Context, job dispatch.Job, reason string) {
	p.succeed(ctx, job, OutcomeSkipped, reason)
}

// retry schedules another attempt, or parks the job once attempts are
// exhausted.
func (p *Processor) retry(ctx context.Context, job dispatch.Job, cause error) {
	attemptCount := job.AttemptCount + 1
	if attemptCount >= p.cfg.MaxAttempts {
		p.buryAfter(ctx, job, attemptCount, cause.Error())
		return
	}
	delay := p.cfg.retryDelay(attemptCount)
	nextAttemptAt := p.clock().Add(delay)
	if err := p.store.MarkJobFailed(ctx, job.ID, attemptCount, nextAttemptAt, cause.Error()); err != nil {
		log.Printf("worker: mark job %s failed: %v", job.ID, err)
		return
	}
	log.Printf("worker: job %s attempt %d failed, retry in %s: %v", job.ID, attemptCount, delay, cause)
	p.record(ctx, job, OutcomeRetried, attemptCount, cause.Error())
}

// bury parks a job immediately for conditions no retry can fix.
func (p *Processor) bury(ctx context.Context, job dispatch.Job, reason string) {
	p.buryAfter(ctx, job, job.AttemptCount+1, reason)
}

func (p *Processor) buryAfter(ctx context.Context, job dispatch.Job, attemptCount int, reason string) {
	if err := p.store.MarkJobDead(ctx, job.ID, attemptCount, reason); err != nil {
		log.Printf("worker: mark job %s dead: %v", job.ID, err)
		return
	}
	log.Printf("worker: job %s dead after %d attempts: %s", job.ID, attemptCount, reason)
	p.record(ctx, job, OutcomeDead, attemptCount, reason)
}

func (p *Processor) record(ctx context.Context, job dispatch.Job, outcome string, attemptCount int, note string) {
	attempt := dispatch.Attempt{
		JobID:        job.ID,
		SeedID:       job.SeedID,
		AutomationID: job.AutomationID,
		Outcome:      outcome,
		AttemptCount: attemptCount,
		LastError:    note,
		CreatedAt:    p.clock(),
	}
	if err := p.store.RecordJobAttempt(ctx, attempt); err != nil {
		log.Printf("worker: record attempt for job %s: %v", job.ID, err)
	}
}

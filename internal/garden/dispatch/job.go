// Package dispatch hands automation work to asynchronous workers with
// priority ordering, pending-job deduplication, and a bounded retry policy.
package dispatch

import (
	"context"
	"time"
)

// Status is a job's queue lifecycle state.
type Status string

const (
	// StatusPending marks a job waiting for its first attempt.
	StatusPending Status = "pending"
	// StatusProcessing marks a claimed job under a lease.
	StatusProcessing Status = "processing"
	// StatusFailed marks a job awaiting a retry attempt.
	StatusFailed Status = "failed"
	// StatusDead marks a job parked after exhausting retries or failing fatally.
	StatusDead Status = "dead"
	// StatusDone marks a completed job retained until pruning.
	StatusDone Status = "done"
)

// Priorities. Manual runs outrank ambient fan-out so interactive use is not
// starved by background work.
const (
	PriorityBackground = 10
	PriorityManual     = 90
)

// Job is one queued request to run one automation against one seed.
type Job struct {
	ID           string
	SeedID       string
	AutomationID string
	OwnerID      string
	Priority     int
	// DedupeKey collapses duplicate pending requests: at most one active
	// automatic job exists per (automation, seed) pair. Manual runs salt
	// the key to force independent execution.
	DedupeKey     string
	Manual        bool
	Status        Status
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether the job still occupies its dedupe key.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing || s == StatusFailed
}

// Summary reports queue depth by status and the oldest runnable row.
type Summary struct {
	PendingCount      int
	ProcessingCount   int
	FailedCount       int
	DeadCount         int
	DoneCount         int
	OldestRunnable    time.Time
	OldestRunnableJob string
}

// Store is the queue persistence boundary.
type Store interface {
	// EnqueueJob inserts the job unless an active job already holds its
	// dedupe key, in which case the existing job is returned and inserted
	// is false.
	EnqueueJob(ctx context.Context, job Job) (stored Job, inserted bool, err error)
	// ClaimNextJob leases the highest-priority runnable job. Expired
	// processing leases are reclaimable.
	ClaimNextJob(ctx context.Context, now time.Time, lease time.Duration) (Job, bool, error)
	// MarkJobSucceeded finishes a job, releasing its dedupe key.
	MarkJobSucceeded(ctx context.Context, jobID string, finishedAt time.Time) error
	// MarkJobFailed schedules a retry attempt.
	MarkJobFailed(ctx context.Context, jobID string, attemptCount int, nextAttemptAt time.Time, lastError string) error
	// MarkJobDead parks a job for the diagnostic window, releasing its
	// dedupe key.
	MarkJobDead(ctx context.Context, jobID string, attemptCount int, lastError string) error
	// PruneJobs deletes done jobs older than doneBefore and dead jobs older
	// than deadBefore, returning the number removed.
	PruneJobs(ctx context.Context, doneBefore, deadBefore time.Time) (int64, error)
	// JobSummary reports queue depth for inspection tooling.
	JobSummary(ctx context.Context) (Summary, error)
	// RecordJobAttempt appends one attempt outcome for diagnostics.
	RecordJobAttempt(ctx context.Context, attempt Attempt) error
}

// Attempt is one processing attempt outcome kept for diagnostics.
type Attempt struct {
	JobID        string
	SeedID       string
	AutomationID string
	Outcome      string
	AttemptCount int
	LastError    string
	CreatedAt    time.Time
}

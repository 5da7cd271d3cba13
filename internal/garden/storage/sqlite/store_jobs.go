package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harms-haus/memoriae/internal/garden/dispatch"
)

const jobColumns = `id, seed_id, automation_id, owner_id, priority, dedupe_key, manual,
    status, attempt_count, next_attempt_at, last_error, created_at, updated_at`

// EnqueueJob inserts a job unless an active job already holds its dedupe
// key. The returned job is the stored row, inserted or pre-existing.
func (s *Store) EnqueueJob(ctx context.Context, job dispatch.Job) (dispatch.Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return dispatch.Job{}, false, err
	}
	if err := s.ready(); err != nil {
		return dispatch.Job{}, false, err
	}
	if strings.TrimSpace(job.ID) == "" {
		return dispatch.Job{}, false, fmt.Errorf("job id is required")
	}
	if strings.TrimSpace(job.DedupeKey) == "" {
		return dispatch.Job{}, false, fmt.Errorf("job dedupe key is required")
	}

	manual := 0
	if job.Manual {
		manual = 1
	}
	const enqueueJobSQL = `
INSERT INTO jobs (
    id, seed_id, automation_id, owner_id, priority, dedupe_key, manual,
    status, attempt_count, next_attempt_at, last_error, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?, '', ?, ?)
ON CONFLICT(dedupe_key) WHERE status IN ('pending', 'processing', 'failed') DO NOTHING
`
	res, err := s.sqlDB.ExecContext(
		ctx,
		enqueueJobSQL,
		job.ID,
		job.SeedID,
		job.AutomationID,
		job.OwnerID,
		job.Priority,
		job.DedupeKey,
		manual,
		toMillis(job.NextAttemptAt),
		toMillis(job.CreatedAt),
		toMillis(job.CreatedAt),
	)
	if err != nil {
		return dispatch.Job{}, false, fmt.Errorf("enqueue job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return dispatch.Job{}, false, fmt.Errorf("enqueue job rows: %w", err)
	}
	if affected > 0 {
		stored, err := s.getJob(ctx, job.ID)
		if err != nil {
			return dispatch.Job{}, false, err
		}
		return stored, true, nil
	}

	stored, err := s.getActiveJobByDedupeKey(ctx, job.DedupeKey)
	if err != nil {
		return dispatch.Job{}, false, err
	}
	return stored, false, nil
}

func (s *Store) getJob(ctx context.Context, jobID string) (dispatch.Job, error) {
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`,
		jobID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return dispatch.Job{}, fmt.Errorf("job %s not found", jobID)
	}
	if err != nil {
		return dispatch.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *Store) getActiveJobByDedupeKey(ctx context.Context, dedupeKey string) (dispatch.Job, error) {
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+`
		 FROM jobs
		 WHERE dedupe_key = ? AND status IN ('pending', 'processing', 'failed')`,
		dedupeKey,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return dispatch.Job{}, fmt.Errorf("active job for dedupe key %s not found", dedupeKey)
	}
	if err != nil {
		return dispatch.Job{}, fmt.Errorf("get active job: %w", err)
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (dispatch.Job, error) {
	var (
		job           dispatch.Job
		manual        int64
		status        string
		nextAttemptAt int64
		createdAt     int64
		updatedAt     int64
	)
	if err := row.Scan(
		&job.ID,
		&job.SeedID,
		&job.AutomationID,
		&job.OwnerID,
		&job.Priority,
		&job.DedupeKey,
		&manual,
		&status,
		&job.AttemptCount,
		&nextAttemptAt,
		&job.LastError,
		&createdAt,
		&updatedAt,
	); err != nil {
		return dispatch.Job{}, err
	}
	job.Manual = manual != 0
	job.Status = dispatch.Status(status)
	job.NextAttemptAt = fromMillis(nextAttemptAt)
	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updatedAt)
	return job, nil
}

// ClaimNextJob leases the highest-priority runnable job: pending or failed
// rows whose next attempt is due, plus processing rows whose lease expired.
func (s *Store) ClaimNextJob(ctx context.Context, now time.Time, lease time.Duration) (dispatch.Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return dispatch.Job{}, false, err
	}
	if err := s.ready(); err != nil {
		return dispatch.Job{}, false, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return dispatch.Job{}, false, fmt.Errorf("begin claim job: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	nowMillis := toMillis(now)
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+`
		 FROM jobs
		 WHERE (status IN ('pending', 'failed') AND next_attempt_at <= ?)
		    OR (status = 'processing' AND lease_expires_at <= ?)
		 ORDER BY priority DESC, next_attempt_at ASC, created_at ASC
		 LIMIT 1`,
		nowMillis,
		nowMillis,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return dispatch.Job{}, false, nil
	}
	if err != nil {
		return dispatch.Job{}, false, fmt.Errorf("select claimable job: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE jobs
		 SET status = 'processing', lease_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		toMillis(now.Add(lease)),
		nowMillis,
		job.ID,
	); err != nil {
		return dispatch.Job{}, false, fmt.Errorf("lease job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return dispatch.Job{}, false, fmt.Errorf("commit claim job: %w", err)
	}

	job.Status = dispatch.StatusProcessing
	job.UpdatedAt = fromMillis(nowMillis)
	return job, true, nil
}

// MarkJobSucceeded finishes a job, releasing its dedupe key.
func (s *Store) MarkJobSucceeded(ctx context.Context, jobID string, finishedAt time.Time) error {
	return s.updateJobStatus(
		ctx,
		jobID,
		`UPDATE jobs
		 SET status = 'done', lease_expires_at = 0, last_error = '', updated_at = ?
		 WHERE id = ?`,
		toMillis(finishedAt),
		jobID,
	)
}

// MarkJobFailed schedules a retry attempt.
func (s *Store) MarkJobFailed(ctx context.Context, jobID string, attemptCount int, nextAttemptAt time.Time, lastError string) error {
	return s.updateJobStatus(
		ctx,
		jobID,
		`UPDATE jobs
		 SET status = 'failed', lease_expires_at = 0, attempt_count = ?,
		     next_attempt_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		attemptCount,
		toMillis(nextAttemptAt),
		lastError,
		toMillis(nextAttemptAt),
		jobID,
	)
}

// MarkJobDead parks a job for the diagnostic window, releasing its dedupe key.
func (s *Store) MarkJobDead(ctx context.Context, jobID string, attemptCount int, lastError string) error {
	return s.updateJobStatus(
		ctx,
		jobID,
		`UPDATE jobs
		 SET status = 'dead', lease_expires_at = 0, attempt_count = ?,
		     last_error = ?, updated_at = ?
		 WHERE id = ?`,
		attemptCount,
		lastError,
		toMillis(time.Now()),
		jobID,
	)
}

func (s *Store) updateJobStatus(ctx context.Context, jobID, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	res, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s rows: %w", jobID, err)
	}
	if affected == 0 {
		return fmt.Errorf("job %s not found", jobID)
	}
	return nil
}

// PruneJobs deletes done jobs finished before doneBefore and dead jobs
// parked before deadBefore, returning the number removed.
func (s *Store) PruneJobs(ctx context.Context, doneBefore, deadBefore time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}

	res, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM jobs
		 WHERE (status = 'done' AND updated_at < ?)
		    OR (status = 'dead' AND updated_at < ?)`,
		toMillis(doneBefore),
		toMillis(deadBefore),
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune jobs rows: %w", err)
	}
	return removed, nil
}

// JobSummary reports queue depth by status and the oldest runnable row.
func (s *Store) JobSummary(ctx context.Context) (dispatch.Summary, error) {
	if err := ctx.Err(); err != nil {
		return dispatch.Summary{}, err
	}
	if err := s.ready(); err != nil {
		return dispatch.Summary{}, err
	}

	summary := dispatch.Summary{}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`,
	)
	if err != nil {
		return dispatch.Summary{}, fmt.Errorf("query job summary counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return dispatch.Summary{}, fmt.Errorf("scan job summary count: %w", err)
		}
		switch dispatch.Status(status) {
		case dispatch.StatusPending:
			summary.PendingCount = count
		case dispatch.StatusProcessing:
			summary.ProcessingCount = count
		case dispatch.StatusFailed:
			summary.FailedCount = count
		case dispatch.StatusDead:
			summary.DeadCount = count
		case dispatch.StatusDone:
			summary.DoneCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return dispatch.Summary{}, fmt.Errorf("iterate job summary counts: %w", err)
	}

	var (
		jobID         string
		nextAttemptAt int64
	)
	err = s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, next_attempt_at
		 FROM jobs
		 WHERE status IN ('pending', 'failed')
		 ORDER BY next_attempt_at ASC, created_at ASC
		 LIMIT 1`,
	).Scan(&jobID, &nextAttemptAt)
	if errors.Is(err, sql.ErrNoRows) {
		return summary, nil
	}
	if err != nil {
		return dispatch.Summary{}, fmt.Errorf("query oldest runnable job: %w", err)
	}
	summary.OldestRunnableJob = jobID
	summary.OldestRunnable = fromMillis(nextAttemptAt)
	return summary, nil
}

// RecordJobAttempt appends one attempt outcome for diagnostics.
func (s *Store) RecordJobAttempt(ctx context.Context, attempt dispatch.Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(attempt.JobID) == "" {
		return fmt.Errorf("attempt job id is required")
	}
	if strings.TrimSpace(attempt.Outcome) == "" {
		return fmt.Errorf("attempt outcome is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	const insertAttemptSQL = `
INSERT INTO job_attempts (job_id, seed_id, automation_id, outcome, attempt_count, last_error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`
	if _, err := s.sqlDB.ExecContext(
		ctx,
		insertAttemptSQL,
		attempt.JobID,
		attempt.SeedID,
		attempt.AutomationID,
		attempt.Outcome,
		attempt.AttemptCount,
		attempt.LastError,
		toMillis(attempt.CreatedAt),
	); err != nil {
		return fmt.Errorf("record job attempt: %w", err)
	}
	return nil
}

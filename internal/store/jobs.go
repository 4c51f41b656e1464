package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sensei/internal/logging"
)

// =============================================================================
// INGESTION JOB RECORDS
// =============================================================================

// Job statuses. A job keyed by an idempotent id survives process restarts;
// resubmitting the same id reports the existing record instead of starting
// a duplicate run.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// JobRecord is a persisted long-running operation (e.g. a chunk ingestion run).
type JobRecord struct {
	ID        string
	Kind      string
	Status    string
	Detail    string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrNoJob is returned when a job id is unknown.
var ErrNoJob = fmt.Errorf("no such job")

// CreateJob inserts a new job record. Returns the existing record when the id
// is already present (idempotent submission).
func (s *LocalStore) CreateJob(ctx context.Context, id, kind, detail string) (JobRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getJobLocked(ctx, id)
	if err == nil {
		logging.Jobs("Job %s already exists (status=%s), not restarting", id, existing.Status)
		return existing, false, nil
	}
	if err != ErrNoJob {
		return JobRecord{}, false, err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO jobs (id, kind, status, detail) VALUES (?, ?, ?, ?)",
		id, kind, JobStatusPending, detail)
	if err != nil {
		return JobRecord{}, false, fmt.Errorf("failed to create job: %w", err)
	}

	rec, err := s.getJobLocked(ctx, id)
	return rec, true, err
}

// UpdateJobStatus transitions a job's status, recording an error message for
// failed jobs.
func (s *LocalStore) UpdateJobStatus(ctx context.Context, id, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoJob
	}

	logging.Jobs("Job %s -> %s", id, status)
	return nil
}

// GetJob reads a job record by id.
func (s *LocalStore) GetJob(ctx context.Context, id string) (JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getJobLocked(ctx, id)
}

func (s *LocalStore) getJobLocked(ctx context.Context, id string) (JobRecord, error) {
	var rec JobRecord
	var errMsg sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, kind, status, detail, error, created_at, updated_at FROM jobs WHERE id = ?", id,
	).Scan(&rec.ID, &rec.Kind, &rec.Status, &rec.Detail, &errMsg, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return JobRecord{}, ErrNoJob
	}
	if err != nil {
		return JobRecord{}, fmt.Errorf("job read failed: %w", err)
	}
	rec.Error = errMsg.String
	return rec, nil
}

// ResetStaleJobs marks jobs left in running state (e.g. by a crash) as failed.
// Called once at startup so restarted processes report honest job state.
func (s *LocalStore) ResetStaleJobs(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, error = 'interrupted by restart', updated_at = CURRENT_TIMESTAMP WHERE status = ?",
		JobStatusFailed, JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Jobs("Marked %d stale running jobs as failed after restart", n)
	}
	return n, nil
}

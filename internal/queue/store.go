package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/jmoiron/sqlx"
)

var (
	// ErrJobNotFound is returned when no live job has the identity
	ErrJobNotFound = errors.New("job not found")
	// ErrJobAlreadyClaimed is returned when a job is not waiting anymore
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in waiting state")
	// ErrLockLost is returned when the stall monitor reclaimed a job mid-run
	ErrLockLost = errors.New("job lock lost")
)

// JobStore persists job records
type JobStore interface {
	WithTx(tx *sqlx.Tx) JobStore
	// Insert stores job as waiting, or reports the live job already holding its identity.
	Insert(ctx context.Context, job *model.Job) (created bool, err error)
	Get(ctx context.Context, jobID string) (*model.Job, error)
	Delete(ctx context.Context, jobID string) error
	Claim(ctx context.Context, jobID string, lock time.Duration) (*model.Job, error)
	Finish(ctx context.Context, job *model.Job, state domain.JobState, reason string, retention time.Duration) error
	Requeue(ctx context.Context, job *model.Job, reason string) error
	Stalled(ctx context.Context, limit int) ([]model.Job, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

const jobColumns = `job_id, queue, kind, subject_id, requested_by, state, attempts, max_attempts,
	failed_reason, locked_until, expires_at, finished_at, created_at, updated_at`

// Store handles job persistence in PostgreSQL
type Store struct {
	db     sqlx.ExtContext
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db sqlx.ExtContext, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// WithTx returns a Store bound to tx
func (s *Store) WithTx(tx *sqlx.Tx) JobStore {
	return &Store{db: tx, logger: s.logger}
}

// Insert stores job unless an unfinished job holds its identity. Completed
// rows and expired terminal rows are replaced in place so the identity can
// be reused; a completed row only stays for snapshot reads.
func (s *Store) Insert(ctx context.Context, job *model.Job) (bool, error) {
	query := `
		INSERT INTO jobs (job_id, queue, kind, subject_id, requested_by, state, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO UPDATE
		SET state = EXCLUDED.state,
		    subject_id = EXCLUDED.subject_id,
		    requested_by = EXCLUDED.requested_by,
		    max_attempts = EXCLUDED.max_attempts,
		    attempts = 0,
		    failed_reason = '',
		    locked_until = NULL,
		    expires_at = NULL,
		    finished_at = NULL,
		    created_at = NOW(),
		    updated_at = NOW()
		WHERE jobs.state = $8 OR (jobs.expires_at IS NOT NULL AND jobs.expires_at <= NOW())
		RETURNING ` + jobColumns

	err := sqlx.GetContext(ctx, s.db, job, query,
		job.JobID, job.Queue, job.Kind, job.SubjectID, job.RequestedBy, domain.JobStateWaiting, job.MaxAttempts,
		domain.JobStateCompleted,
	)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to insert job: %w", err)
	}

	existing, err := s.Get(ctx, job.JobID)
	if err != nil {
		return false, err
	}
	*job = *existing
	return false, nil
}

// Get returns a job that has not passed its retention
func (s *Store) Get(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1 AND (expires_at IS NULL OR expires_at > NOW())`
	if err := sqlx.GetContext(ctx, s.db, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// Delete removes a job that was admitted but never delivered
func (s *Store) Delete(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE job_id = $1 AND state = $2 AND attempts = 0`, jobID, domain.JobStateWaiting)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// Claim attempts to claim a job using optimistic locking. The lock expires
// after lock; the stall monitor reclaims jobs whose lock has expired.
func (s *Store) Claim(ctx context.Context, jobID string, lock time.Duration) (*model.Job, error) {
	query := `
		UPDATE jobs
		SET state = $2,
		    attempts = attempts + 1,
		    locked_until = NOW() + make_interval(secs => $3),
		    updated_at = NOW()
		WHERE job_id = $1
		  AND state = $4
		RETURNING ` + jobColumns

	var job model.Job
	err := sqlx.GetContext(ctx, s.db, &job, query, jobID, domain.JobStateActive, lock.Seconds(), domain.JobStateWaiting)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
			)
			return nil, ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.Int("attempt", job.Attempts),
	)
	return &job, nil
}

// Finish moves an active job to a terminal state. The attempt number guards
// against finishing a job the stall monitor already reclaimed.
func (s *Store) Finish(ctx context.Context, job *model.Job, state domain.JobState, reason string, retention time.Duration) error {
	query := `
		UPDATE jobs
		SET state = $2,
		    failed_reason = $3,
		    locked_until = NULL,
		    finished_at = NOW(),
		    expires_at = NOW() + make_interval(secs => $4),
		    updated_at = NOW()
		WHERE job_id = $1 AND state = $5 AND attempts = $6
		RETURNING state, failed_reason, finished_at, expires_at, updated_at
	`
	err := s.db.QueryRowxContext(ctx, query,
		job.JobID, state, reason, retention.Seconds(), domain.JobStateActive, job.Attempts,
	).Scan(&job.State, &job.FailedReason, &job.FinishedAt, &job.ExpiresAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrLockLost
		}
		return fmt.Errorf("failed to update job status: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", job.JobID),
		slog.String("status", string(state)),
	)
	return nil
}

// Requeue moves an active job back to waiting for another attempt
func (s *Store) Requeue(ctx context.Context, job *model.Job, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = $2, failed_reason = $3, locked_until = NULL, updated_at = NOW()
		WHERE job_id = $1 AND state = $4 AND attempts = $5
	`, job.JobID, domain.JobStateWaiting, reason, domain.JobStateActive, job.Attempts)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}

	job.State = domain.JobStateWaiting
	job.FailedReason = reason
	job.LockedUntil = nil
	return nil
}

// Stalled returns active jobs whose lock has expired
func (s *Store) Stalled(ctx context.Context, limit int) ([]model.Job, error) {
	jobs := []model.Job{}
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE state = $1 AND locked_until < NOW()
		ORDER BY locked_until
		LIMIT $2
	`
	if err := sqlx.SelectContext(ctx, s.db, &jobs, query, domain.JobStateActive, limit); err != nil {
		return nil, fmt.Errorf("failed to list stalled jobs: %w", err)
	}
	return jobs, nil
}

// DeleteExpired removes terminal jobs past their retention
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired jobs: %w", err)
	}
	return res.RowsAffected()
}

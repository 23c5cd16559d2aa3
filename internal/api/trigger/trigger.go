// Package trigger admits generation jobs. Every check runs before the queue
// is touched, so a rejected request has no side effect.
package trigger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/jobid"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/cuongbtq/verse-journal/internal/queue"
	"github.com/google/uuid"
)

// Subjects loads the entities jobs are derived from
type Subjects interface {
	GetJournal(ctx context.Context, id uuid.UUID) (*model.Journal, error)
	GetPoem(ctx context.Context, id uuid.UUID) (*model.Poem, error)
	FindPoemByJournal(ctx context.Context, journalID uuid.UUID, withDeleted bool) (*model.Poem, error)
}

// JobQueue admits and looks up jobs
type JobQueue interface {
	Lookup(ctx context.Context, id jobid.ID) (*queue.Handle, error)
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (*queue.Handle, error)
}

// Result is the admission outcome returned to the caller
type Result struct {
	JobID string
	State domain.JobState
}

// Done reports whether the job has already completed
func (r *Result) Done() bool {
	return r.State == domain.JobStateCompleted
}

// ResultCheck reports whether the output of a completed job is still in place
type ResultCheck func(ctx context.Context) (bool, error)

// admit returns the job already under id, or enqueues a new one. A completed
// job whose result has since been removed is replaced so the output can be
// generated again.
func admit(ctx context.Context, jobs JobQueue, logger *slog.Logger, id jobid.ID, req queue.EnqueueRequest, produced ResultCheck) (*Result, error) {
	existing, err := jobs.Lookup(ctx, id)
	switch {
	case err == nil && existing.State() == domain.JobStateCompleted:
		present, err := produced(ctx)
		if err != nil {
			return nil, domain.Infrastructure(err, "failed to check job result")
		}
		if present {
			return &Result{JobID: existing.ID.String(), State: existing.State()}, nil
		}
		logger.Info("Result of completed job was removed, regenerating",
			slog.String("job_id", id.String()),
		)
	case err == nil:
		logger.Info("Job already in flight",
			slog.String("job_id", id.String()),
			slog.String("state", string(existing.State())),
		)
		return &Result{JobID: existing.ID.String(), State: existing.State()}, nil
	case !errors.Is(err, queue.ErrJobNotFound):
		return nil, domain.Infrastructure(err, "failed to look up job")
	}

	handle, err := jobs.Enqueue(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrInfrastructure) {
			return nil, err
		}
		return nil, domain.Infrastructure(err, "failed to enqueue job")
	}
	return &Result{JobID: handle.ID.String(), State: handle.State()}, nil
}

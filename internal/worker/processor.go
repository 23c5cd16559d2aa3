package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/jobid"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/cuongbtq/verse-journal/internal/queue"
	"github.com/cuongbtq/verse-journal/internal/storage"
	"github.com/cuongbtq/verse-journal/internal/worker/command"
	"github.com/cuongbtq/verse-journal/internal/worker/saga"
	"github.com/cuongbtq/verse-journal/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// Transactor runs fn in a database transaction
type Transactor interface {
	RunInTransaction(ctx context.Context, fn postgresql.TxFn) error
}

// JobQueue is the part of the queue runtime a processor drives
type JobQueue interface {
	Claim(ctx context.Context, id jobid.ID) (*model.Job, error)
	MarkCompleted(ctx context.Context, tx *sqlx.Tx, job *model.Job) error
	Completed(job *model.Job)
	Fail(ctx context.Context, job *model.Job, cause error) error
	Options(kind domain.JobKind) queue.KindOptions
}

// Commands builds the command for each job kind. Adding a kind means adding
// a method here and a case to resolve.
type Commands interface {
	CreatePoemText(store command.PoemStore, undo *saga.Log) command.Command
	GeneratePoemAudio(store command.PoemStore, undo *saga.Log) command.Command
}

// Processor claims a job, runs its command in one transaction with the
// completion record, and records the outcome.
type Processor struct {
	db       Transactor
	queue    JobQueue
	commands Commands
	storage  *storage.Storage
	logger   *slog.Logger
}

// NewProcessor creates a Processor
func NewProcessor(db Transactor, q JobQueue, commands Commands, store *storage.Storage, logger *slog.Logger) *Processor {
	return &Processor{db: db, queue: q, commands: commands, storage: store, logger: logger}
}

// Process runs the job with identity id. A nil return means the outcome is
// recorded and the delivery can be acknowledged.
func (p *Processor) Process(ctx context.Context, id jobid.ID) error {
	job, err := p.queue.Claim(ctx, id)
	if err != nil {
		if errors.Is(err, queue.ErrJobAlreadyClaimed) || errors.Is(err, domain.ErrUnknownKind) {
			return err
		}
		// Database error - could be transient
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	logger := p.logger.With(
		slog.String("job_id", job.JobID),
		slog.Int("attempt", job.Attempts),
	)
	logger.Info("Processing job")

	// The lock bounds the run so the stall monitor never reclaims a live job.
	jobCtx, cancel := context.WithTimeout(ctx, p.queue.Options(job.Kind).LockDuration)
	defer cancel()

	undo := saga.New(logger)
	err = p.db.RunInTransaction(jobCtx, func(tx *sqlx.Tx) error {
		cmd, err := p.resolve(job.Kind, p.storage.WithTx(tx), undo)
		if err != nil {
			return err
		}
		if err := cmd.Execute(jobCtx, job.Payload()); err != nil {
			return err
		}
		return p.queue.MarkCompleted(jobCtx, tx, job)
	})

	if err == nil {
		undo.Forget()
		p.queue.Completed(job)
		logger.Info("Job completed successfully")
		return nil
	}

	undo.Compensate(context.WithoutCancel(ctx))

	if errors.Is(err, queue.ErrLockLost) {
		logger.Warn("Job lock lost before completion, discarding result")
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = domain.NewRetryableError(fmt.Errorf("job timed out: %w", err))
	}

	logger.Error("Job execution failed", slog.Any("error", err))
	if failErr := p.queue.Fail(ctx, job, err); failErr != nil {
		// Left active; the stall monitor settles it once the lock expires.
		logger.Error("Failed to record job failure", slog.Any("error", failErr))
	}
	return nil
}

func (p *Processor) resolve(kind domain.JobKind, store command.PoemStore, undo *saga.Log) (command.Command, error) {
	switch kind {
	case domain.JobKindText:
		return p.commands.CreatePoemText(store, undo), nil
	case domain.JobKindAudio:
		return p.commands.GeneratePoemAudio(store, undo), nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
}

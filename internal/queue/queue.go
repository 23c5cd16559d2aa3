package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/jobid"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// StalledReason is recorded on jobs whose lock expired with no attempts left.
const StalledReason = "job stalled more than allowable limit"

// Publisher delivers job messages to workers
type Publisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Message is the body of a delivery on a work queue
type Message struct {
	JobID string `json:"jobId"`
}

// KindOptions tunes the runtime for one job kind
type KindOptions struct {
	RoutingKey         string
	LockDuration       time.Duration
	MaxAttempts        int
	CompletedRetention time.Duration
	FailedRetention    time.Duration
}

// Handle is the caller-facing view of a job
type Handle struct {
	ID           jobid.ID
	Kind         domain.JobKind
	RequestedBy  uuid.UUID
	state        domain.JobState
	Attempts     int
	FailedReason string
	UpdatedAt    time.Time
}

// State returns the job state at the time the handle was read
func (h *Handle) State() domain.JobState {
	return h.state
}

// NewHandle builds a handle outside the runtime, for callers faking a queue.
func NewHandle(id jobid.ID, kind domain.JobKind, state domain.JobState) *Handle {
	return &Handle{ID: id, Kind: kind, state: state}
}

// EnqueueRequest describes a job to admit
type EnqueueRequest struct {
	Kind        domain.JobKind
	SubjectID   uuid.UUID
	RequestedBy uuid.UUID
}

// Queue admits, tracks and finishes generation jobs
type Queue struct {
	store     JobStore
	publisher Publisher
	events    *Emitter
	options   map[domain.JobKind]KindOptions
	logger    *slog.Logger
}

// New creates a Queue. Every kind in domain.JobKinds needs options.
func New(store JobStore, publisher Publisher, events *Emitter, options map[domain.JobKind]KindOptions, logger *slog.Logger) (*Queue, error) {
	for _, kind := range domain.JobKinds() {
		opts, ok := options[kind]
		if !ok {
			return nil, fmt.Errorf("missing queue options for job kind %q", kind)
		}
		if opts.RoutingKey == "" || opts.LockDuration <= 0 || opts.MaxAttempts < 1 {
			return nil, fmt.Errorf("invalid queue options for job kind %q", kind)
		}
	}

	return &Queue{
		store:     store,
		publisher: publisher,
		events:    events,
		options:   options,
		logger:    logger,
	}, nil
}

// Options returns the options for kind
func (q *Queue) Options(kind domain.JobKind) KindOptions {
	return q.options[kind]
}

// Lookup returns the live job with the identity, or ErrJobNotFound
func (q *Queue) Lookup(ctx context.Context, id jobid.ID) (*Handle, error) {
	job, err := q.store.Get(ctx, id.String())
	if err != nil {
		return nil, err
	}
	return newHandle(job)
}

// Enqueue admits a job. When an unfinished job already holds the identity it
// is returned unchanged and nothing is published. A completed job is
// replaced; callers decide beforehand whether its result still stands.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (*Handle, error) {
	id, err := req.Kind.JobID(req.SubjectID.String())
	if err != nil {
		return nil, err
	}

	opts := q.options[req.Kind]
	job := &model.Job{
		JobID:       id.String(),
		Queue:       id.Queue,
		Kind:        req.Kind,
		SubjectID:   req.SubjectID,
		RequestedBy: req.RequestedBy,
		State:       domain.JobStateWaiting,
		MaxAttempts: opts.MaxAttempts,
	}

	created, err := q.store.Insert(ctx, job)
	if err != nil {
		return nil, err
	}
	if !created {
		q.logger.Info("Job already exists",
			slog.String("job_id", job.JobID),
			slog.String("state", string(job.State)),
		)
		return newHandle(job)
	}

	if err := q.publish(ctx, job); err != nil {
		if delErr := q.store.Delete(context.WithoutCancel(ctx), job.JobID); delErr != nil {
			q.logger.Error("Failed to remove undelivered job",
				slog.String("job_id", job.JobID),
				slog.Any("error", delErr),
			)
		}
		return nil, err
	}

	q.emit(domain.EventAdded, job, "")
	q.emit(domain.EventWaiting, job, "")
	q.logger.Info("Job enqueued",
		slog.String("job_id", job.JobID),
		slog.String("kind", string(job.Kind)),
	)
	return newHandle(job)
}

// Claim moves a waiting job to active under a lock
func (q *Queue) Claim(ctx context.Context, id jobid.ID) (*model.Job, error) {
	kind, err := domain.KindFromID(id)
	if err != nil {
		return nil, err
	}

	job, err := q.store.Claim(ctx, id.String(), q.options[kind].LockDuration)
	if err != nil {
		return nil, err
	}

	q.emit(domain.EventActive, job, "")
	return job, nil
}

// MarkCompleted finishes job inside tx. It fails with ErrLockLost when the
// job was reclaimed, so the caller's writes roll back with it.
func (q *Queue) MarkCompleted(ctx context.Context, tx *sqlx.Tx, job *model.Job) error {
	opts := q.options[job.Kind]
	return q.store.WithTx(tx).Finish(ctx, job, domain.JobStateCompleted, "", opts.CompletedRetention)
}

// Completed announces a job whose completion has been committed
func (q *Queue) Completed(job *model.Job) {
	q.emit(domain.EventCompleted, job, "")
}

// Fail records an attempt that ended with cause. Retryable causes go back to
// waiting while attempts remain; anything else fails the job.
func (q *Queue) Fail(ctx context.Context, job *model.Job, cause error) error {
	reason := cause.Error()
	if domain.IsRetryable(cause) && job.CanRetry() {
		return q.retry(ctx, job, reason)
	}
	return q.fail(ctx, job, reason)
}

func (q *Queue) retry(ctx context.Context, job *model.Job, reason string) error {
	if err := q.store.Requeue(ctx, job, reason); err != nil {
		return q.lockLost(job, err)
	}

	if err := q.publish(ctx, job); err != nil {
		q.logger.Error("Failed to redeliver job",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		// The job is waiting with no message behind it; reclaim it so the
		// failure is visible instead of leaving it waiting forever.
		claimed, claimErr := q.store.Claim(ctx, job.JobID, q.options[job.Kind].LockDuration)
		if claimErr != nil {
			return claimErr
		}
		*job = *claimed
		return q.fail(ctx, job, reason)
	}

	q.emit(domain.EventWaiting, job, "")
	q.logger.Info("Job requeued for retry",
		slog.String("job_id", job.JobID),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_attempts", job.MaxAttempts),
	)
	return nil
}

func (q *Queue) fail(ctx context.Context, job *model.Job, reason string) error {
	opts := q.options[job.Kind]
	if err := q.store.Finish(ctx, job, domain.JobStateFailed, reason, opts.FailedRetention); err != nil {
		return q.lockLost(job, err)
	}

	q.emit(domain.EventFailed, job, reason)
	q.logger.Warn("Job failed",
		slog.String("job_id", job.JobID),
		slog.String("reason", reason),
	)
	return nil
}

func (q *Queue) lockLost(job *model.Job, err error) error {
	if errors.Is(err, ErrLockLost) {
		q.logger.Warn("Job lock lost, leaving it to its current owner",
			slog.String("job_id", job.JobID),
			slog.Int("attempt", job.Attempts),
		)
		return nil
	}
	return err
}

// Error reports a runtime failure not tied to a job
func (q *Queue) Error(err error) {
	q.events.Emit(Event{Type: domain.EventError, Reason: err.Error()})
}

func (q *Queue) publish(ctx context.Context, job *model.Job) error {
	body, err := json.Marshal(Message{JobID: job.JobID})
	if err != nil {
		return fmt.Errorf("failed to encode job message: %w", err)
	}

	routingKey := q.options[job.Kind].RoutingKey
	if err := q.publisher.PublishWithRetry(ctx, routingKey, body, "application/json"); err != nil {
		return domain.Infrastructure(err, "failed to publish job %s", job.JobID)
	}
	return nil
}

func (q *Queue) emit(t domain.EventType, job *model.Job, reason string) {
	q.events.Emit(Event{Type: t, JobID: job.JobID, Kind: job.Kind, Reason: reason})
}

func newHandle(job *model.Job) (*Handle, error) {
	id, err := job.ID()
	if err != nil {
		return nil, err
	}
	return &Handle{
		ID:           id,
		Kind:         job.Kind,
		RequestedBy:  job.RequestedBy,
		state:        job.State,
		Attempts:     job.Attempts,
		FailedReason: job.FailedReason,
		UpdatedAt:    job.UpdatedAt,
	}, nil
}

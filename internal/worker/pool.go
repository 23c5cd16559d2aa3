package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/queue"
	workerdomain "github.com/cuongbtq/verse-journal/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	// Jobs outlive the shutdown signal; their own deadline bounds them.
	jobCtx := context.WithoutCancel(ctx)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, jobCtx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx, jobCtx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg := <-w.jobsChan:
			w.handle(jobCtx, workerName, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, workerName string, msg *workerdomain.JobMessage) {
	jobID := msg.ID.String()
	w.logger.Info("Worker received job",
		slog.String("worker_name", workerName),
		slog.String("job_id", jobID),
	)

	err := w.processor.Process(ctx, msg.ID)
	if err == nil {
		if ackErr := msg.Delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("job_id", jobID),
				slog.Any("error", ackErr),
			)
		}
		return
	}

	requeue := w.shouldRequeueJob(err)
	w.logger.Warn("Job delivery not processed",
		slog.String("worker_name", workerName),
		slog.String("job_id", jobID),
		slog.Bool("requeue", requeue),
		slog.Any("error", err),
	)

	if requeue {
		if nackErr := msg.Delivery.Nack(false, true); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("job_id", jobID),
				slog.Any("error", nackErr),
			)
		}
		return
	}

	if ackErr := msg.Delivery.Ack(false); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("job_id", jobID),
			slog.Any("error", ackErr),
		)
	}
}

// shouldRequeueJob decides whether a delivery goes back to the broker. Job
// outcomes are recorded in the job table, so only failures that happened
// before the job could be claimed are requeued.
func (w *Worker) shouldRequeueJob(err error) bool {
	// Another delivery already owns the job, or it was removed
	if errors.Is(err, queue.ErrJobAlreadyClaimed) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}

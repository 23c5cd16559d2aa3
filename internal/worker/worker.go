package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/jobid"
	workerdomain "github.com/cuongbtq/verse-journal/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer opens a delivery stream on a work queue
type Consumer interface {
	Consume(ctx context.Context, queue, consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
}

// JobProcessor runs one delivered job to a recorded outcome
type JobProcessor interface {
	Process(ctx context.Context, id jobid.ID) error
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Consumer      Consumer
	Processor     JobProcessor
	Kind          domain.JobKind
	QueueName     string
	WorkerID      string
	Concurrency   int
	PrefetchCount int
}

// Worker consumes one job kind's queue with a fixed pool of goroutines
type Worker struct {
	logger        *slog.Logger
	consumer      Consumer
	processor     JobProcessor
	kind          domain.JobKind
	queueName     string
	workerID      string
	concurrency   int
	prefetchCount int
	jobsChan      chan *workerdomain.JobMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch < concurrency {
		prefetch = concurrency
	}

	return &Worker{
		logger:        cfg.Logger.With(slog.String("kind", string(cfg.Kind))),
		consumer:      cfg.Consumer,
		processor:     cfg.Processor,
		kind:          cfg.Kind,
		queueName:     cfg.QueueName,
		workerID:      cfg.WorkerID + "-" + string(cfg.Kind),
		concurrency:   concurrency,
		prefetchCount: prefetch,
		jobsChan:      make(chan *workerdomain.JobMessage),
		stopChan:      make(chan struct{}),
	}
}

// Start consumes deliveries until ctx is canceled. Jobs already running
// are allowed to finish; Stop waits for them. A stream closed by the broker
// ends Start with ErrDeliveriesClosed.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.String("queue", w.queueName),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	if err := w.startMessageDispatcher(ctx, deliveries); err != nil {
		return fmt.Errorf("worker %s stopped consuming: %w", w.workerID, err)
	}

	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

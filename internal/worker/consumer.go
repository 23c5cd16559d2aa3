package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/jobid"
	"github.com/cuongbtq/verse-journal/internal/queue"
	workerdomain "github.com/cuongbtq/verse-journal/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer opens the delivery stream with QoS set to the prefetch count
func (w *Worker) setupConsumer(ctx context.Context) (<-chan amqp.Delivery, error) {
	deliveries, err := w.consumer.Consume(ctx, w.queueName, w.workerID, w.prefetchCount)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queueName),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	return deliveries, nil
}

// parseMessage extracts the job identity from a delivery body
func (w *Worker) parseMessage(body []byte) (jobid.ID, error) {
	var msg queue.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return jobid.ID{}, fmt.Errorf("%w: %v", workerdomain.ErrInvalidMessage, err)
	}

	id, err := jobid.Parse(msg.JobID)
	if err != nil {
		return jobid.ID{}, fmt.Errorf("%w: %v", workerdomain.ErrInvalidMessage, err)
	}

	kind, err := domain.KindFromID(id)
	if err != nil {
		return jobid.ID{}, fmt.Errorf("%w: %v", workerdomain.ErrInvalidMessage, err)
	}
	if kind != w.kind {
		return jobid.ID{}, fmt.Errorf("%w: got %s", workerdomain.ErrKindMismatch, kind)
	}

	return id, nil
}

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches jobs to worker pool.
// It returns nil once ctx is canceled and ErrDeliveriesClosed if the broker ends the stream first.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("RabbitMQ delivery channel closed")
				return workerdomain.ErrDeliveriesClosed
			}
			w.dispatch(ctx, delivery, delivery.Body)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, delivery workerdomain.Acknowledger, body []byte) {
	id, err := w.parseMessage(body)
	if err != nil {
		w.logger.Error("Rejecting malformed job message",
			slog.String("body", string(body)),
			slog.Any("error", err),
		)
		// NACK without requeue - malformed messages go to the DLQ if one is bound
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			w.logger.Error("Failed to NACK malformed message",
				slog.Any("error", nackErr),
			)
		}
		return
	}

	msg := &workerdomain.JobMessage{ID: id, Delivery: delivery}

	select {
	case w.jobsChan <- msg:
		w.logger.Debug("Job dispatched to worker pool",
			slog.String("job_id", id.String()),
		)
	case <-ctx.Done():
		w.logger.Info("Message dispatcher stopped while dispatching job")
		// NACK the message so it can be reprocessed
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			w.logger.Error("Failed to NACK message on shutdown",
				slog.Any("error", nackErr),
			)
		}
	}
}

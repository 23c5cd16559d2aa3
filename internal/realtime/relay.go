package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cuongbtq/verse-journal/internal/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AllEvents binds to every routing key on the events exchange
const AllEvents = "#"

// Subscriber opens a subscription to lifecycle events
type Subscriber interface {
	Subscribe(ctx context.Context, bindingKey string) (<-chan amqp.Delivery, error)
}

// Relay forwards lifecycle events to the room named by the job identity.
// It only observes: it never retries a send nor touches job state.
type Relay struct {
	subscriber Subscriber
	hub        *Hub
	logger     *slog.Logger
	maxBackoff time.Duration
}

func NewRelay(subscriber Subscriber, hub *Hub, logger *slog.Logger) *Relay {
	return &Relay{subscriber: subscriber, hub: hub, logger: logger, maxBackoff: 30 * time.Second}
}

// Run consumes events until ctx is done, resubscribing when the broker
// closes the subscription.
func (r *Relay) Run(ctx context.Context) error {
	for {
		deliveries, err := r.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		r.consume(ctx, deliveries)
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Warn("Event subscription closed, resubscribing")
	}
}

func (r *Relay) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = r.maxBackoff

	return backoff.Retry(ctx, func() (<-chan amqp.Delivery, error) {
		return r.subscriber.Subscribe(ctx, AllEvents)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("Failed to subscribe to events, retrying",
				slog.Any("error", err),
				slog.Duration("next_retry", next),
			)
		}),
	)
}

func (r *Relay) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			r.Forward(d.Body)
		}
	}
}

// Forward routes one encoded event. Events without a job identity are
// logged and never reach clients.
func (r *Relay) Forward(body []byte) {
	var ev queue.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		r.logger.Warn("Dropping malformed event", slog.Any("error", err))
		return
	}

	if !ev.Type.JobScoped() {
		r.logger.Error("Queue runtime error",
			slog.String("type", string(ev.Type)),
			slog.String("reason", ev.Reason),
		)
		return
	}
	if ev.JobID == "" {
		r.logger.Warn("Dropping job event without id", slog.String("type", string(ev.Type)))
		return
	}

	delivered := r.hub.Send(ev.JobID, Frame{
		Event: "job:" + string(ev.Type),
		Data: Notification{
			Type:   string(ev.Type),
			JobID:  ev.JobID,
			Reason: ev.Reason,
		},
	})
	r.logger.Debug("Event forwarded",
		slog.String("job_id", ev.JobID),
		slog.String("type", string(ev.Type)),
		slog.Int("clients", delivered),
	)
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/verse-journal/internal/domain"
)

// Event is a lifecycle transition observed by the queue runtime.
type Event struct {
	Type      domain.EventType `json:"type"`
	JobID     string           `json:"jobId,omitempty"`
	Kind      domain.JobKind   `json:"kind,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// RoutingKey addresses the event on the events exchange, e.g. "job.text.completed".
func (e Event) RoutingKey() string {
	if !e.Type.JobScoped() {
		return "queue." + string(e.Type)
	}
	return fmt.Sprintf("job.%s.%s", e.Kind, e.Type)
}

// EventPublisher sends encoded events to the broker
type EventPublisher interface {
	PublishEvent(ctx context.Context, routingKey string, body []byte) error
}

// Emitter publishes events in order from a single goroutine. Emit never
// blocks; when the buffer is full the event is dropped and logged.
type Emitter struct {
	publisher EventPublisher
	events    chan Event
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// NewEmitter creates an emitter with room for buffer pending events
func NewEmitter(publisher EventPublisher, buffer int, logger *slog.Logger) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	return &Emitter{
		publisher: publisher,
		events:    make(chan Event, buffer),
		logger:    logger,
		timeout:   2 * time.Second,
		now:       time.Now,
	}
}

// Emit queues ev for publishing
func (e *Emitter) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}

	select {
	case e.events <- ev:
	default:
		e.logger.Warn("Event buffer full, dropping event",
			slog.String("type", string(ev.Type)),
			slog.String("job_id", ev.JobID),
		)
	}
}

// Run publishes queued events until ctx is done, then flushes what is left.
func (e *Emitter) Run(ctx context.Context) {
	for {
		select {
		case ev := <-e.events:
			e.publish(ctx, ev)
		case <-ctx.Done():
			e.flush()
			return
		}
	}
}

func (e *Emitter) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	for {
		select {
		case ev := <-e.events:
			e.publish(ctx, ev)
		default:
			return
		}
	}
}

func (e *Emitter) publish(ctx context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		e.logger.Error("Failed to encode event", slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.publisher.PublishEvent(ctx, ev.RoutingKey(), body); err != nil {
		e.logger.Warn("Failed to publish event",
			slog.String("type", string(ev.Type)),
			slog.String("job_id", ev.JobID),
			slog.Any("error", err),
		)
	}
}

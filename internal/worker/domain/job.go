package domain

import "github.com/cuongbtq/verse-journal/internal/jobid"

// Acknowledger settles a broker delivery. amqp091.Delivery satisfies it.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// JobMessage represents a job message from RabbitMQ
type JobMessage struct {
	ID       jobid.ID
	Delivery Acknowledger
}

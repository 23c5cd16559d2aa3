package domain

import "errors"

var (
	// ErrInvalidMessage is returned when a delivery body does not carry a job identity
	ErrInvalidMessage = errors.New("invalid job message")

	// ErrKindMismatch is returned when a delivery reached the consumer of another job kind
	ErrKindMismatch = errors.New("job kind does not match consumer")

	// ErrDeliveriesClosed is returned when the broker closed the delivery stream under a live consumer
	ErrDeliveriesClosed = errors.New("delivery channel closed")
)

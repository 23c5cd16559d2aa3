package dto

import (
	"time"

	"github.com/cuongbtq/verse-journal/internal/queue"
)

// JobAccepted is returned by generation endpoints
type JobAccepted struct {
	JobID string `json:"jobId"`
	State string `json:"state"`
}

type JobDTO struct {
	JobID        string    `json:"jobId"`
	Kind         string    `json:"kind"`
	State        string    `json:"state"`
	Attempts     int       `json:"attempts"`
	FailedReason string    `json:"failedReason,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func NewJobDTO(h *queue.Handle) JobDTO {
	return JobDTO{
		JobID:        h.ID.String(),
		Kind:         string(h.Kind),
		State:        string(h.State()),
		Attempts:     h.Attempts,
		FailedReason: h.FailedReason,
		UpdatedAt:    h.UpdatedAt,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

package domain

import (
	"errors"
	"fmt"

	"github.com/cuongbtq/verse-journal/internal/jobid"
)

// QueueName is the queue every generation job belongs to.
const QueueName = "poetry"

// JobKind selects the command a job runs.
type JobKind string

const (
	JobKindText  JobKind = "text"
	JobKindAudio JobKind = "audio"
)

// ErrUnknownKind is returned when a string does not name a JobKind.
var ErrUnknownKind = errors.New("unknown job kind")

// JobKinds lists every kind. Dispatch tables are tested against it.
func JobKinds() []JobKind {
	return []JobKind{JobKindText, JobKindAudio}
}

// ParseJobKind converts a wire string to a JobKind.
func ParseJobKind(s string) (JobKind, error) {
	for _, k := range JobKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// JobID is the only way job identities are built.
func (k JobKind) JobID(subjectID string) (jobid.ID, error) {
	return jobid.New(QueueName, string(k), subjectID)
}

// KindFromID returns the kind encoded in id.
func KindFromID(id jobid.ID) (JobKind, error) {
	if id.Queue != QueueName {
		return "", fmt.Errorf("%w: queue %q", ErrUnknownKind, id.Queue)
	}
	return ParseJobKind(id.Kind)
}

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// IsTerminal reports whether no further transitions happen from s.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// EventType names a queue lifecycle event.
type EventType string

const (
	EventAdded     EventType = "added"
	EventWaiting   EventType = "waiting"
	EventActive    EventType = "active"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventError     EventType = "error"
)

// EventTypes lists every lifecycle event.
func EventTypes() []EventType {
	return []EventType{EventAdded, EventWaiting, EventActive, EventCompleted, EventFailed, EventError}
}

// JobScoped reports whether events of this type carry a job identity.
func (t EventType) JobScoped() bool {
	return t != EventError
}

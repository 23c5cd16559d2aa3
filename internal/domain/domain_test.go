package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesSentinel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		msg  string
	}{
		{"not found", NotFound("journal %s not found", "j1"), ErrNotFound, "journal j1 not found"},
		{"forbidden", Forbidden("not owner"), ErrForbidden, "not owner"},
		{"conflict", Conflict("poem already exists"), ErrConflict, "poem already exists"},
		{"unprocessable", Unprocessable("too short"), ErrUnprocessableContent, "too short"},
		{"unavailable", Unavailable(errors.New("boom"), "Try again later"), ErrRetryableUnavailable, "Try again later"},
		{"schema", SchemaViolation(errors.New("bad json"), "invalid poem"), ErrSchemaViolation, "invalid poem"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("failed to do thing: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.kind)
			assert.Equal(t, tt.msg, MessageOf(wrapped, "fallback"))
		})
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Infrastructure(cause, "store unavailable")

	assert.ErrorIs(t, err, ErrInfrastructure)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "fallback", MessageOf(cause, "fallback"))
}

func TestRetryableError(t *testing.T) {
	cause := Unavailable(errors.New("503"), "provider down")
	err := fmt.Errorf("generate: %w", NewRetryableError(cause))

	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, ErrRetryableUnavailable)
	assert.False(t, IsRetryable(cause))
}

func TestParseJobKind(t *testing.T) {
	for _, k := range JobKinds() {
		parsed, err := ParseJobKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseJobKind("video")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestJobIDRoundTripsKind(t *testing.T) {
	for _, k := range JobKinds() {
		id, err := k.JobID("subject-1")
		require.NoError(t, err)
		assert.Equal(t, QueueName, id.Queue)

		kind, err := KindFromID(id)
		require.NoError(t, err)
		assert.Equal(t, k, kind)
	}
}

func TestJobStateIsTerminal(t *testing.T) {
	assert.False(t, JobStateWaiting.IsTerminal())
	assert.False(t, JobStateActive.IsTerminal())
	assert.True(t, JobStateCompleted.IsTerminal())
	assert.True(t, JobStateFailed.IsTerminal())
}

func TestOnlyErrorEventIsUnscoped(t *testing.T) {
	for _, et := range EventTypes() {
		assert.Equal(t, et != EventError, et.JobScoped(), et)
	}
}

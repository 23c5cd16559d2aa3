package trigger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/verse-journal/internal/api/command"
	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/queue"
	"github.com/cuongbtq/verse-journal/internal/storage"
	"github.com/google/uuid"
)

// Audio admits narration of a poem
type Audio struct {
	subjects Subjects
	jobs     JobQueue
	logger   *slog.Logger
}

// NewAudio creates an Audio trigger
func NewAudio(subjects Subjects, jobs JobQueue, logger *slog.Logger) *Audio {
	return &Audio{subjects: subjects, jobs: jobs, logger: logger}
}

// Trigger admits an audio job for poemID on behalf of userID
func (a *Audio) Trigger(ctx context.Context, userID, poemID uuid.UUID) (*Result, error) {
	poem, err := command.OwnedPoem(ctx, a.subjects, userID, poemID)
	if err != nil {
		return nil, err
	}
	if poem.FileID.Valid {
		return nil, domain.Conflict("poem already has audio")
	}

	id, err := domain.JobKindAudio.JobID(poem.ID.String())
	if err != nil {
		return nil, domain.Infrastructure(err, "failed to build job id")
	}

	return admit(ctx, a.jobs, a.logger, id, queue.EnqueueRequest{
		Kind:        domain.JobKindAudio,
		SubjectID:   poem.ID,
		RequestedBy: userID,
	}, func(ctx context.Context) (bool, error) {
		current, err := a.subjects.GetPoem(ctx, poem.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return current.FileID.Valid && !current.IsDeleted(), nil
	})
}

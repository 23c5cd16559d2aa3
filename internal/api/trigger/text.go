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

// MinJournalTokens is the least content a journal needs to be turned into a poem.
const MinJournalTokens = 200

// errEmptyCount marks a tokenizer answer that carries no count
var errEmptyCount = errors.New("tokenizer returned no count")

// TokenCounter measures content with the generation provider's tokenizer
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// Text admits poem text generation for a journal
type Text struct {
	subjects Subjects
	tokens   TokenCounter
	jobs     JobQueue
	logger   *slog.Logger
}

// NewText creates a Text trigger
func NewText(subjects Subjects, tokens TokenCounter, jobs JobQueue, logger *slog.Logger) *Text {
	return &Text{subjects: subjects, tokens: tokens, jobs: jobs, logger: logger}
}

// Trigger admits a text job for journalID on behalf of userID
func (t *Text) Trigger(ctx context.Context, userID, journalID uuid.UUID) (*Result, error) {
	journal, err := command.OwnedJournal(ctx, t.subjects, userID, journalID)
	if err != nil {
		return nil, err
	}

	exists, err := t.livePoem(ctx, journal.ID)
	if err != nil {
		return nil, domain.Infrastructure(err, "failed to load poem")
	}
	if exists {
		return nil, domain.Conflict("poem already exists for this journal")
	}

	count, err := t.tokens.CountTokens(ctx, journal.Content)
	if err == nil && count <= 0 {
		err = errEmptyCount
	}
	if err != nil {
		t.logger.Warn("Token count unavailable",
			slog.String("journal_id", journal.ID.String()),
			slog.Any("error", err),
		)
		return nil, domain.Unavailable(err, "Try again later")
	}
	if count < MinJournalTokens {
		return nil, domain.Unprocessable("journal content is too short to create a poem (%d of %d tokens)", count, MinJournalTokens)
	}

	id, err := domain.JobKindText.JobID(journal.ID.String())
	if err != nil {
		return nil, domain.Infrastructure(err, "failed to build job id")
	}

	return admit(ctx, t.jobs, t.logger, id, queue.EnqueueRequest{
		Kind:        domain.JobKindText,
		SubjectID:   journal.ID,
		RequestedBy: userID,
	}, func(ctx context.Context) (bool, error) {
		return t.livePoem(ctx, journal.ID)
	})
}

// livePoem reports whether journalID has a poem that is not soft-deleted
func (t *Text) livePoem(ctx context.Context, journalID uuid.UUID) (bool, error) {
	poem, err := t.subjects.FindPoemByJournal(ctx, journalID, true)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !poem.IsDeleted(), nil
}

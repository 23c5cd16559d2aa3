package command

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/cuongbtq/verse-journal/internal/storage"
	"github.com/google/uuid"
)

// poemText turns a journal into a poem. A poem archived earlier for the same
// journal is restored with the new content so its identity is kept.
type poemText struct {
	factory *Factory
	store   PoemStore
}

func (c *poemText) Execute(ctx context.Context, payload model.JobPayload) error {
	logger := c.factory.logger.With(slog.String("journal_id", payload.SubjectID.String()))
	logger.Info("Poem generation started")

	journal, err := c.store.GetJournal(ctx, payload.SubjectID)
	if err != nil {
		return persistence(err, "journal")
	}

	archived, err := c.archivedPoem(ctx, journal.ID)
	if err != nil {
		return err
	}

	content, err := c.generate(ctx, journal)
	if err != nil {
		return err
	}

	if archived != nil {
		if err := c.store.RestorePoem(ctx, archived.ID, *content); err != nil {
			return domain.Infrastructure(err, "failed to restore poem")
		}
		logger.Info("Poem regenerated", slog.String("poem_id", archived.ID.String()))
		return nil
	}

	poem := &model.Poem{ID: uuid.New(), JournalID: journal.ID, Content: *content}
	if err := c.store.CreatePoem(ctx, poem); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return domain.Conflict("poem already exists for journal")
		}
		return domain.Infrastructure(err, "failed to save poem")
	}

	logger.Info("Poem generation finished", slog.String("poem_id", poem.ID.String()))
	return nil
}

// archivedPoem returns the archived poem for the journal, nil when there is
// none, and a conflict when a live one exists.
func (c *poemText) archivedPoem(ctx context.Context, journalID uuid.UUID) (*model.Poem, error) {
	poem, err := c.store.FindPoemByJournal(ctx, journalID, true)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Infrastructure(err, "failed to load poem")
	}
	if !poem.IsDeleted() {
		return nil, domain.Conflict("poem already exists for journal")
	}
	return poem, nil
}

func (c *poemText) generate(ctx context.Context, journal *model.Journal) (*model.PoemContent, error) {
	raw, err := c.factory.text.GenerateText(ctx, poemPrompt(journal), poemSchema())
	if err != nil {
		return nil, provider(err, "poem generation failed")
	}

	var content model.PoemContent
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return nil, domain.SchemaViolation(err, "response from provider is not valid JSON")
	}
	if err := c.factory.validate.Struct(content); err != nil {
		return nil, domain.SchemaViolation(err, "invalid poem response")
	}
	return &content, nil
}

package command

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/cuongbtq/verse-journal/internal/storage"
	"github.com/google/uuid"
)

// JournalStore persists journals
type JournalStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	CreateJournal(ctx context.Context, j *model.Journal) error
	GetJournal(ctx context.Context, id uuid.UUID) (*model.Journal, error)
	ListJournals(ctx context.Context, filter storage.JournalFilter) ([]model.Journal, error)
	UpdateJournal(ctx context.Context, j *model.Journal) error
	SoftDeleteJournal(ctx context.Context, id uuid.UUID) error
}

// CreateJournalInput carries a new journal
type CreateJournalInput struct {
	Title     string
	Content   string
	Emotions  []string
	Topics    []string
	Date      *time.Time
	IsPrivate bool
}

// UpdateJournalInput carries a partial update; nil fields are left unchanged
type UpdateJournalInput struct {
	Title     *string
	Content   *string
	Emotions  *[]string
	Topics    *[]string
	Date      *time.Time
	IsPrivate *bool
}

// JournalPage is one page of ListJournals
type JournalPage struct {
	Journals []model.Journal
	Next     *storage.JournalCursor
}

// Journals manages a user's journal entries
type Journals struct {
	store  JournalStore
	logger *slog.Logger
	now    func() time.Time
}

// NewJournals creates Journals
func NewJournals(store JournalStore, logger *slog.Logger) *Journals {
	return &Journals{store: store, logger: logger, now: time.Now}
}

// Create adds a journal for userID
func (j *Journals) Create(ctx context.Context, userID uuid.UUID, in CreateJournalInput) (*model.Journal, error) {
	if _, err := j.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("user not found")
		}
		return nil, domain.Infrastructure(err, "failed to load user")
	}

	journal := &model.Journal{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		Emotions:  nonNil(in.Emotions),
		Topics:    nonNil(in.Topics),
		Date:      j.now().UTC(),
		IsPrivate: in.IsPrivate,
	}
	if journal.Title == "" {
		journal.Title = model.DefaultJournalTitle
	}
	if in.Date != nil {
		journal.Date = *in.Date
	}

	if err := j.store.CreateJournal(ctx, journal); err != nil {
		return nil, domain.Infrastructure(err, "failed to create journal")
	}

	j.logger.Info("Journal created",
		slog.String("journal_id", journal.ID.String()),
		slog.String("user_id", userID.String()),
	)
	return journal, nil
}

// Get returns a journal owned by userID
func (j *Journals) Get(ctx context.Context, userID, id uuid.UUID) (*model.Journal, error) {
	return OwnedJournal(ctx, j.store, userID, id)
}

// List returns one page of userID's journals
func (j *Journals) List(ctx context.Context, filter storage.JournalFilter) (*JournalPage, error) {
	journals, err := j.store.ListJournals(ctx, filter)
	if err != nil {
		return nil, domain.Infrastructure(err, "failed to list journals")
	}

	page := &JournalPage{Journals: journals}
	if len(journals) > filter.PageSize {
		page.Journals = journals[:filter.PageSize]
		last := page.Journals[len(page.Journals)-1]
		page.Next = &storage.JournalCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return page, nil
}

// Update applies in to a journal owned by userID
func (j *Journals) Update(ctx context.Context, userID, id uuid.UUID, in UpdateJournalInput) (*model.Journal, error) {
	journal, err := OwnedJournal(ctx, j.store, userID, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		journal.Title = strings.TrimSpace(*in.Title)
		if journal.Title == "" {
			journal.Title = model.DefaultJournalTitle
		}
	}
	if in.Content != nil {
		journal.Content = *in.Content
	}
	if in.Emotions != nil {
		journal.Emotions = nonNil(*in.Emotions)
	}
	if in.Topics != nil {
		journal.Topics = nonNil(*in.Topics)
	}
	if in.Date != nil {
		journal.Date = *in.Date
	}
	if in.IsPrivate != nil {
		journal.IsPrivate = *in.IsPrivate
	}

	if err := j.store.UpdateJournal(ctx, journal); err != nil {
		return nil, domain.Infrastructure(err, "failed to update journal")
	}
	return journal, nil
}

// Delete archives a journal owned by userID
func (j *Journals) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := OwnedJournal(ctx, j.store, userID, id); err != nil {
		return err
	}
	if err := j.store.SoftDeleteJournal(ctx, id); err != nil {
		return domain.Infrastructure(err, "failed to delete journal")
	}

	j.logger.Info("Journal deleted", slog.String("journal_id", id.String()))
	return nil
}

// JournalGetter loads journals
type JournalGetter interface {
	GetJournal(ctx context.Context, id uuid.UUID) (*model.Journal, error)
}

// OwnedJournal loads a journal and checks userID owns it
func OwnedJournal(ctx context.Context, store JournalGetter, userID, id uuid.UUID) (*model.Journal, error) {
	journal, err := store.GetJournal(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("journal not found")
		}
		return nil, domain.Infrastructure(err, "failed to load journal")
	}
	if journal.UserID != userID {
		return nil, domain.Forbidden("journal belongs to another user")
	}
	return journal, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

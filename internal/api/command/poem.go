package command

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/cuongbtq/verse-journal/internal/storage"
	"github.com/cuongbtq/verse-journal/shared/objectstore"
	"github.com/cuongbtq/verse-journal/shared/postgresql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PoemStore persists poems and their artifacts
type PoemStore interface {
	GetJournal(ctx context.Context, id uuid.UUID) (*model.Journal, error)
	GetPoem(ctx context.Context, id uuid.UUID) (*model.Poem, error)
	SoftDeletePoem(ctx context.Context, id uuid.UUID) error
	DetachFile(ctx context.Context, poemID uuid.UUID) (uuid.UUID, error)
	GetFile(ctx context.Context, id uuid.UUID) (*model.File, error)
	SoftDeleteFile(ctx context.Context, id uuid.UUID) error
}

// TxRunner runs fn against a PoemStore bound to one transaction
type TxRunner func(ctx context.Context, fn func(PoemStore) error) error

// Transactional binds base to transactions opened by db
func Transactional(db *postgresql.Client, base *storage.Storage) TxRunner {
	return func(ctx context.Context, fn func(PoemStore) error) error {
		return db.RunInTransaction(ctx, func(tx *sqlx.Tx) error {
			return fn(base.WithTx(tx))
		})
	}
}

// Artifacts reads and removes stored audio
type Artifacts interface {
	SignedURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// PoemView is a poem with a temporary link to its audio, if any
type PoemView struct {
	Poem     *model.Poem
	AudioURL string
}

// Poems manages generated poems
type Poems struct {
	store     PoemStore
	inTx      TxRunner
	artifacts Artifacts
	logger    *slog.Logger
}

// NewPoems creates Poems
func NewPoems(store PoemStore, inTx TxRunner, artifacts Artifacts, logger *slog.Logger) *Poems {
	return &Poems{store: store, inTx: inTx, artifacts: artifacts, logger: logger}
}

// Get returns a poem of userID with a signed audio URL
func (p *Poems) Get(ctx context.Context, userID, id uuid.UUID) (*PoemView, error) {
	poem, err := OwnedPoem(ctx, p.store, userID, id)
	if err != nil {
		return nil, err
	}

	view := &PoemView{Poem: poem}
	if !poem.FileID.Valid {
		return view, nil
	}

	file, err := p.store.GetFile(ctx, poem.FileID.UUID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return view, nil
		}
		return nil, domain.Infrastructure(err, "failed to load audio file")
	}

	url, err := p.artifacts.SignedURL(ctx, file.Key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			p.logger.Warn("Audio object missing", slog.String("key", file.Key))
			return view, nil
		}
		return nil, domain.Infrastructure(err, "failed to sign audio url")
	}
	view.AudioURL = url
	return view, nil
}

// Delete archives a poem of userID so it can be generated again
func (p *Poems) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := OwnedPoem(ctx, p.store, userID, id); err != nil {
		return err
	}
	if err := p.store.SoftDeletePoem(ctx, id); err != nil {
		return domain.Infrastructure(err, "failed to delete poem")
	}

	p.logger.Info("Poem deleted", slog.String("poem_id", id.String()))
	return nil
}

// DeleteAudio detaches and archives a poem's audio, then removes the blob.
// The blob is only removed after the database change commits; a failed
// removal is logged and leaves an orphaned object.
func (p *Poems) DeleteAudio(ctx context.Context, userID, id uuid.UUID) error {
	poem, err := OwnedPoem(ctx, p.store, userID, id)
	if err != nil {
		return err
	}
	if !poem.FileID.Valid {
		return domain.NotFound("poem has no audio")
	}

	var key string
	err = p.inTx(ctx, func(store PoemStore) error {
		fileID, err := store.DetachFile(ctx, id)
		if err != nil {
			return err
		}
		file, err := store.GetFile(ctx, fileID)
		if err != nil {
			return err
		}
		key = file.Key
		return store.SoftDeleteFile(ctx, fileID)
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrStale) {
			return domain.NotFound("poem has no audio")
		}
		return domain.Infrastructure(err, "failed to delete audio")
	}

	if err := p.artifacts.Delete(context.WithoutCancel(ctx), key); err != nil {
		p.logger.Error("Failed to delete audio object",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
	return nil
}

// PoemGetter loads poems and their journals
type PoemGetter interface {
	JournalGetter
	GetPoem(ctx context.Context, id uuid.UUID) (*model.Poem, error)
}

// OwnedPoem loads a poem and checks userID owns its journal
func OwnedPoem(ctx context.Context, store PoemGetter, userID, id uuid.UUID) (*model.Poem, error) {
	poem, err := store.GetPoem(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("poem not found")
		}
		return nil, domain.Infrastructure(err, "failed to load poem")
	}

	journal, err := store.GetJournal(ctx, poem.JournalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("journal not found")
		}
		return nil, domain.Infrastructure(err, "failed to load journal")
	}
	if journal.UserID != userID {
		return nil, domain.Forbidden("poem belongs to another user")
	}
	return poem, nil
}

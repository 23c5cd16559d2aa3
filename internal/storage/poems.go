package storage

import (
	"context"

	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const poemColumns = `id, journal_id, content, file_id, created_at, updated_at, deleted_at`

// GetPoem returns a live poem
func (s *Storage) GetPoem(ctx context.Context, id uuid.UUID) (*model.Poem, error) {
	var p model.Poem
	query := `SELECT ` + poemColumns + ` FROM poems WHERE id = $1 AND deleted_at IS NULL`
	if err := sqlx.GetContext(ctx, s.db, &p, query, id); err != nil {
		return nil, translate(err, "get poem")
	}
	return &p, nil
}

// FindPoemByJournal returns the poem derived from a journal. Archived poems
// are included when withDeleted is set.
func (s *Storage) FindPoemByJournal(ctx context.Context, journalID uuid.UUID, withDeleted bool) (*model.Poem, error) {
	var p model.Poem
	query := `SELECT ` + poemColumns + ` FROM poems WHERE journal_id = $1`
	if !withDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if err := sqlx.GetContext(ctx, s.db, &p, query, journalID); err != nil {
		return nil, translate(err, "find poem by journal")
	}
	return &p, nil
}

// CreatePoem inserts p
func (s *Storage) CreatePoem(ctx context.Context, p *model.Poem) error {
	query := `
		INSERT INTO poems (id, journal_id, content)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowxContext(ctx, query, p.ID, p.JournalID, p.Content).Scan(&p.CreatedAt, &p.UpdatedAt)
	return translate(err, "create poem")
}

// RestorePoem overwrites an archived poem's content and un-archives it
func (s *Storage) RestorePoem(ctx context.Context, id uuid.UUID, content model.PoemContent) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE poems
		SET content = $2, deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL
	`, id, content)
	if err != nil {
		return translate(err, "restore poem")
	}
	return expectOne(res, "restore poem")
}

// AttachFile sets the poem's artifact. It fails with ErrStale when the poem
// already has one or is archived.
func (s *Storage) AttachFile(ctx context.Context, poemID, fileID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE poems
		SET file_id = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL AND file_id IS NULL
	`, poemID, fileID)
	if err != nil {
		return translate(err, "attach file")
	}
	return expectOne(res, "attach file")
}

// DetachFile clears the poem's artifact and returns the detached file id
func (s *Storage) DetachFile(ctx context.Context, poemID uuid.UUID) (uuid.UUID, error) {
	var fileID uuid.UUID
	err := s.db.QueryRowxContext(ctx, `
		UPDATE poems p
		SET file_id = NULL, updated_at = NOW()
		FROM poems old
		WHERE p.id = old.id AND p.id = $1 AND p.deleted_at IS NULL AND p.file_id IS NOT NULL
		RETURNING old.file_id
	`, poemID).Scan(&fileID)
	if err != nil {
		return uuid.Nil, translate(err, "detach file")
	}
	return fileID, nil
}

// SoftDeletePoem archives a poem so it can be regenerated
func (s *Storage) SoftDeletePoem(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE poems SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return translate(err, "delete poem")
	}
	return expectOne(res, "delete poem")
}

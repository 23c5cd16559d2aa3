package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const journalColumns = `id, user_id, title, content, emotions, topics, date, is_private, created_at, updated_at, deleted_at`

// CreateJournal inserts j
func (s *Storage) CreateJournal(ctx context.Context, j *model.Journal) error {
	query := `
		INSERT INTO journals (id, user_id, title, content, emotions, topics, date, is_private)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowxContext(ctx, query,
		j.ID, j.UserID, j.Title, j.Content, j.Emotions, j.Topics, j.Date, j.IsPrivate,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	return translate(err, "create journal")
}

// GetJournal returns a live journal
func (s *Storage) GetJournal(ctx context.Context, id uuid.UUID) (*model.Journal, error) {
	var j model.Journal
	query := `SELECT ` + journalColumns + ` FROM journals WHERE id = $1 AND deleted_at IS NULL`
	if err := sqlx.GetContext(ctx, s.db, &j, query, id); err != nil {
		return nil, translate(err, "get journal")
	}
	return &j, nil
}

// JournalFilter selects one page of a user's journals
type JournalFilter struct {
	UserID   uuid.UUID
	Topic    string
	Emotion  string
	PageSize int
	Cursor   *JournalCursor
}

// JournalCursor is the position after the last journal of a page
type JournalCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// ListJournals returns live journals matching filter, newest first. One row
// beyond PageSize is fetched so callers can tell whether more exist.
func (s *Storage) ListJournals(ctx context.Context, filter JournalFilter) ([]model.Journal, error) {
	query := `
		SELECT ` + journalColumns + `
		FROM journals
		WHERE user_id = $1 AND deleted_at IS NULL
	`
	args := []interface{}{filter.UserID}
	argIdx := 2

	if filter.Topic != "" {
		query += fmt.Sprintf(" AND $%d = ANY(topics)", argIdx)
		args = append(args, filter.Topic)
		argIdx++
	}

	if filter.Emotion != "" {
		query += fmt.Sprintf(" AND $%d = ANY(emotions)", argIdx)
		args = append(args, filter.Emotion)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	journals := []model.Journal{}
	if err := sqlx.SelectContext(ctx, s.db, &journals, query, args...); err != nil {
		return nil, translate(err, "list journals")
	}
	return journals, nil
}

// UpdateJournal writes the mutable fields of j
func (s *Storage) UpdateJournal(ctx context.Context, j *model.Journal) error {
	query := `
		UPDATE journals
		SET title = $2, content = $3, emotions = $4, topics = $5, date = $6, is_private = $7, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err := s.db.QueryRowxContext(ctx, query,
		j.ID, j.Title, j.Content, j.Emotions, j.Topics, j.Date, j.IsPrivate,
	).Scan(&j.UpdatedAt)
	return translate(err, "update journal")
}

// SoftDeleteJournal archives a journal
func (s *Storage) SoftDeleteJournal(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE journals SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return translate(err, "delete journal")
	}
	return expectOne(res, "delete journal")
}

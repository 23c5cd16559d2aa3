package storage

import (
	"context"

	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateFile inserts an artifact reference
func (s *Storage) CreateFile(ctx context.Context, f *model.File) error {
	query := `
		INSERT INTO files (id, key, mime_type, size, original_name, is_public)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowxContext(ctx, query,
		f.ID, f.Key, f.MimeType, f.Size, f.OriginalName, f.IsPublic,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	return translate(err, "create file")
}

// GetFile returns a live artifact reference
func (s *Storage) GetFile(ctx context.Context, id uuid.UUID) (*model.File, error) {
	var f model.File
	query := `
		SELECT id, key, mime_type, size, original_name, is_public, created_at, updated_at, deleted_at
		FROM files
		WHERE id = $1 AND deleted_at IS NULL
	`
	if err := sqlx.GetContext(ctx, s.db, &f, query, id); err != nil {
		return nil, translate(err, "get file")
	}
	return &f, nil
}

// SoftDeleteFile archives an artifact reference
func (s *Storage) SoftDeleteFile(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return translate(err, "delete file")
	}
	return expectOne(res, "delete file")
}

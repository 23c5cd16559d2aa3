package storage

import (
	"context"

	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, name, password, role, created_at, updated_at, deleted_at`

// CreateUser inserts u. ErrDuplicate means the email is taken.
func (s *Storage) CreateUser(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, email, name, password, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowxContext(ctx, query, u.ID, u.Email, u.Name, u.Password, u.Role).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	return translate(err, "create user")
}

// GetUserByID returns a live user
func (s *Storage) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	if err := sqlx.GetContext(ctx, s.db, &u, query, id); err != nil {
		return nil, translate(err, "get user")
	}
	return &u, nil
}

// GetUserByEmail returns a live user
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND deleted_at IS NULL`
	if err := sqlx.GetContext(ctx, s.db, &u, query, email); err != nil {
		return nil, translate(err, "get user by email")
	}
	return &u, nil
}

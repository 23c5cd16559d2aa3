package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no live row matches
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned on unique constraint violations
	ErrDuplicate = errors.New("duplicate record")
	// ErrStale is returned when a guarded update matched no row
	ErrStale = errors.New("record changed concurrently")
)

const uniqueViolation = "23505"

// Storage handles entity persistence. It runs against the pool or, through
// WithTx, against a single transaction.
type Storage struct {
	db sqlx.ExtContext
}

// NewStorage creates a new Storage instance
func NewStorage(db sqlx.ExtContext) *Storage {
	return &Storage{db: db}
}

// WithTx returns a Storage bound to tx
func (s *Storage) WithTx(tx *sqlx.Tx) *Storage {
	return &Storage{db: tx}
}

// translate maps driver errors onto package sentinels
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrStale)
	}
	return nil
}

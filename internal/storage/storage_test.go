package storage

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: sql.ErrNoRows, want: ErrNotFound},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, want: ErrDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tt.err, "get poem"), tt.want)
		})
	}

	t.Run("other errors keep their cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := translate(cause, "get poem")
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "failed to get poem")
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, translate(nil, "get poem"))
	})
}

type rowsAffected int64

func (r rowsAffected) LastInsertId() (int64, error) { return 0, nil }
func (r rowsAffected) RowsAffected() (int64, error) { return int64(r), nil }

func TestExpectOne(t *testing.T) {
	assert.NoError(t, expectOne(rowsAffected(1), "attach file"))
	assert.ErrorIs(t, expectOne(rowsAffected(0), "attach file"), ErrStale)
}

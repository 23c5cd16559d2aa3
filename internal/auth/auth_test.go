package auth

import (
	"testing"
	"time"

	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	user := &model.User{ID: uuid.New(), Email: "poet@example.com", Role: "echo"}

	signed, err := tokens.Issue(user)
	require.NoError(t, err)

	claims, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.ID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.Role, claims.Role)
}

func TestTokens_Rejects(t *testing.T) {
	user := &model.User{ID: uuid.New(), Email: "poet@example.com", Role: "echo"}
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	valid := NewTokens(testSecret, time.Hour)
	valid.now = func() time.Time { return issued }
	signed, err := valid.Issue(user)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		tokens *Tokens
	}{
		{name: "garbage", token: "not-a-token", tokens: valid},
		{name: "other secret", token: signed, tokens: &Tokens{secret: []byte("another-secret-another-secret-!!"), now: valid.now}},
		{
			name:  "expired",
			token: signed,
			tokens: &Tokens{secret: []byte(testSecret), now: func() time.Time {
				return issued.Add(2 * time.Hour)
			}},
		},
		{
			name: "unsigned",
			token: func() string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ID: user.ID}).
					SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return s
			}(),
			tokens: valid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tokens.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "battery staple"))
}

package command

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	apidomain "github.com/cuongbtq/verse-journal/internal/api/domain"
	"github.com/cuongbtq/verse-journal/internal/auth"
	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/cuongbtq/verse-journal/internal/storage"
	"github.com/google/uuid"
)

const (
	msgUserExists         = "user already exists"
	msgInvalidCredentials = "email or password is incorrect"
)

// UserStore persists accounts
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// TokenIssuer signs access tokens
type TokenIssuer interface {
	Issue(u *model.User) (string, error)
}

// Session is what a successful register or login returns
type Session struct {
	User        *model.User
	AccessToken string
	Permissions []apidomain.Permission
}

// RegisterInput carries a new account
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Accounts registers and authenticates users
type Accounts struct {
	users  UserStore
	tokens TokenIssuer
	logger *slog.Logger
}

// NewAccounts creates Accounts
func NewAccounts(users UserStore, tokens TokenIssuer, logger *slog.Logger) *Accounts {
	return &Accounts{users: users, tokens: tokens, logger: logger}
}

// Register creates a user with the default role and signs them in
func (a *Accounts) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	_, err := a.users.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, domain.Unprocessable(msgUserExists)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, domain.Infrastructure(err, "failed to look up user")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, domain.Infrastructure(err, "failed to hash password")
	}

	user := &model.User{
		ID:       uuid.New(),
		Email:    email,
		Name:     in.Name,
		Password: hash,
		Role:     string(apidomain.DefaultRole),
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, domain.Unprocessable(msgUserExists)
		}
		return nil, domain.Infrastructure(err, "failed to create user")
	}

	a.logger.Info("User registered", slog.String("user_id", user.ID.String()))
	return a.session(user)
}

// Login verifies credentials. Unknown emails and wrong passwords fail alike.
func (a *Accounts) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := a.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.Unprocessable(msgInvalidCredentials)
		}
		return nil, domain.Infrastructure(err, "failed to look up user")
	}

	if !auth.CheckPassword(user.Password, password) {
		return nil, domain.Unprocessable(msgInvalidCredentials)
	}
	return a.session(user)
}

// Me returns the account behind a verified token
func (a *Accounts) Me(ctx context.Context, userID uuid.UUID) (*Session, error) {
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("user not found")
		}
		return nil, domain.Infrastructure(err, "failed to load user")
	}
	return &Session{User: user, Permissions: permissionsOf(user)}, nil
}

func (a *Accounts) session(user *model.User) (*Session, error) {
	token, err := a.tokens.Issue(user)
	if err != nil {
		return nil, domain.Infrastructure(err, "failed to issue token")
	}
	return &Session{User: user, AccessToken: token, Permissions: permissionsOf(user)}, nil
}

func permissionsOf(user *model.User) []apidomain.Permission {
	role, err := apidomain.ParseRole(user.Role)
	if err != nil {
		return nil
	}
	return role.Permissions()
}

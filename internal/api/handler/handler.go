package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/verse-journal/internal/api/command"
	"github.com/cuongbtq/verse-journal/internal/api/dto"
	"github.com/cuongbtq/verse-journal/internal/api/trigger"
	"github.com/cuongbtq/verse-journal/internal/auth"
	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/jobid"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/cuongbtq/verse-journal/internal/queue"
	"github.com/cuongbtq/verse-journal/internal/storage"
	applog "github.com/cuongbtq/verse-journal/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ClaimsKey is where the auth middleware stores verified token claims
const ClaimsKey = "claims"

type Accounts interface {
	Register(ctx context.Context, in command.RegisterInput) (*command.Session, error)
	Login(ctx context.Context, email, password string) (*command.Session, error)
	Me(ctx context.Context, userID uuid.UUID) (*command.Session, error)
}

type Journals interface {
	Create(ctx context.Context, userID uuid.UUID, in command.CreateJournalInput) (*model.Journal, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*model.Journal, error)
	List(ctx context.Context, filter storage.JournalFilter) (*command.JournalPage, error)
	Update(ctx context.Context, userID, id uuid.UUID, in command.UpdateJournalInput) (*model.Journal, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type Poems interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*command.PoemView, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	DeleteAudio(ctx context.Context, userID, id uuid.UUID) error
}

// Trigger admits a generation job for a subject owned by userID
type Trigger interface {
	Trigger(ctx context.Context, userID, subjectID uuid.UUID) (*trigger.Result, error)
}

type Jobs interface {
	Lookup(ctx context.Context, id jobid.ID) (*queue.Handle, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Accounts     Accounts
	Journals     Journals
	Poems        Poems
	TextTrigger  Trigger
	AudioTrigger Trigger
	Jobs         Jobs
	Health       func(ctx context.Context) error
}

// userID returns the subject of the verified token
func userID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return uuid.Nil, false
	}
	claims, ok := v.(*auth.Claims)
	if !ok {
		return uuid.Nil, false
	}
	return claims.ID, true
}

// pathUUID parses a uuid path parameter, writing 400 when it is malformed
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: name + " must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// statusOf maps the domain taxonomy to an HTTP status
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRetryableUnavailable):
		return http.StatusNotAcceptable
	case errors.Is(err, domain.ErrUnprocessableContent):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError answers with the status err maps to. Server errors are logged
// with the request's logger so they carry its request id.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		applog.FromContext(c.Request.Context(), logger).Error("Request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.JSON(status, dto.ErrorResponse{Error: domain.MessageOf(err, "internal server error")})
		return
	}
	c.JSON(status, dto.ErrorResponse{Error: domain.MessageOf(err, err.Error())})
}

func badRequest(c *gin.Context, logger *slog.Logger, err error) {
	applog.FromContext(c.Request.Context(), logger).Debug("Invalid request", slog.String("path", c.Request.URL.Path), slog.String("error", err.Error()))
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
}

// Package command holds the units of work the worker runs for each job kind.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/cuongbtq/verse-journal/internal/storage"
	"github.com/cuongbtq/verse-journal/internal/worker/saga"
	"github.com/cuongbtq/verse-journal/shared/gemini"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// Command executes one job
type Command interface {
	Execute(ctx context.Context, payload model.JobPayload) error
}

// PoemStore is the persistence a command writes through. It is bound to the
// job's transaction.
type PoemStore interface {
	GetJournal(ctx context.Context, id uuid.UUID) (*model.Journal, error)
	GetPoem(ctx context.Context, id uuid.UUID) (*model.Poem, error)
	FindPoemByJournal(ctx context.Context, journalID uuid.UUID, withDeleted bool) (*model.Poem, error)
	CreatePoem(ctx context.Context, p *model.Poem) error
	RestorePoem(ctx context.Context, id uuid.UUID, content model.PoemContent) error
	CreateFile(ctx context.Context, f *model.File) error
	AttachFile(ctx context.Context, poemID, fileID uuid.UUID) error
}

// TextGenerator produces schema-constrained text
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

// SpeechGenerator narrates a prompt
type SpeechGenerator interface {
	GenerateAudio(ctx context.Context, prompt, voice, language string) (*gemini.Audio, error)
}

// ObjectStore keeps generated artifacts
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Config configures a Factory
type Config struct {
	Text     TextGenerator
	Speech   SpeechGenerator
	Objects  ObjectStore
	Voice    string
	Language string
	Logger   *slog.Logger
}

// Factory builds a fresh command per job
type Factory struct {
	text     TextGenerator
	speech   SpeechGenerator
	objects  ObjectStore
	voice    string
	language string
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewFactory creates a Factory
func NewFactory(cfg Config) *Factory {
	voice, language := cfg.Voice, cfg.Language
	if voice == "" {
		voice = DefaultVoice
	}
	if language == "" {
		language = DefaultLanguage
	}

	return &Factory{
		text:     cfg.Text,
		speech:   cfg.Speech,
		objects:  cfg.Objects,
		voice:    voice,
		language: language,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// CreatePoemText returns the command for text jobs
func (f *Factory) CreatePoemText(store PoemStore, _ *saga.Log) Command {
	return &poemText{factory: f, store: store}
}

// GeneratePoemAudio returns the command for audio jobs
func (f *Factory) GeneratePoemAudio(store PoemStore, undo *saga.Log) Command {
	return &poemAudio{factory: f, store: store, undo: undo}
}

// provider maps generation failures onto the job error taxonomy
func provider(err error, what string) error {
	if errors.Is(err, gemini.ErrTransient) {
		return domain.NewRetryableError(fmt.Errorf("%s: %w", what, err))
	}
	return domain.Infrastructure(err, "%s", what)
}

// persistence maps storage failures onto the job error taxonomy
func persistence(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return domain.NotFound("%s not found", what)
	}
	return domain.Infrastructure(err, "failed to load %s", what)
}

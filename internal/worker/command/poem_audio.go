package command

import (
	"context"
	"fmt"
	"log/slog"
	"mime"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/cuongbtq/verse-journal/internal/worker/saga"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// poemAudio narrates a poem, uploads the audio and links it to the poem.
// The upload is compensated when any later step fails.
type poemAudio struct {
	factory *Factory
	store   PoemStore
	undo    *saga.Log
}

func (c *poemAudio) Execute(ctx context.Context, payload model.JobPayload) error {
	logger := c.factory.logger.With(slog.String("poem_id", payload.SubjectID.String()))
	logger.Info("Poem audio generation started")

	poem, err := c.store.GetPoem(ctx, payload.SubjectID)
	if err != nil {
		return persistence(err, "poem")
	}
	if poem.FileID.Valid {
		return domain.Conflict("poem already has audio")
	}

	prompt, err := narrationPrompt(poem.Content)
	if err != nil {
		return domain.Infrastructure(err, "failed to build narration prompt")
	}

	audio, err := c.factory.speech.GenerateAudio(ctx, prompt, c.factory.voice, c.factory.language)
	if err != nil {
		return provider(err, "audio generation failed")
	}

	key, err := c.objectKey(poem.ID, audio.MIMEType)
	if err != nil {
		return err
	}

	file := &model.File{
		ID:           uuid.New(),
		Key:          key,
		MimeType:     audio.MIMEType,
		Size:         int64(len(audio.Data)),
		OriginalName: poem.Content.Title,
	}

	err = c.undo.Do(ctx, saga.Step{
		Name: "upload " + key,
		Do: func(ctx context.Context) error {
			return c.factory.objects.Put(ctx, key, audio.Data, audio.MIMEType)
		},
		Undo: func(ctx context.Context) error {
			return c.factory.objects.Delete(ctx, key)
		},
	})
	if err != nil {
		return domain.Infrastructure(err, "failed to upload audio")
	}

	if err := c.persist(ctx, poem.ID, file); err != nil {
		c.undo.Compensate(context.WithoutCancel(ctx))
		return err
	}

	logger.Info("Poem audio generation finished", slog.String("key", key))
	return nil
}

func (c *poemAudio) persist(ctx context.Context, poemID uuid.UUID, file *model.File) error {
	if err := c.store.CreateFile(ctx, file); err != nil {
		return domain.Infrastructure(err, "failed to save file")
	}
	if err := c.store.AttachFile(ctx, poemID, file.ID); err != nil {
		return domain.Infrastructure(err, "failed to attach file to poem")
	}
	return nil
}

// objectKey builds poem/<poemId>/<unixMillis>.<ext> from the audio MIME type
func (c *poemAudio) objectKey(poemID uuid.UUID, mimeType string) (string, error) {
	media, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", domain.Infrastructure(err, "invalid audio mime type %q", mimeType)
	}

	m := mimetype.Lookup(media)
	if m == nil || m.Extension() == "" {
		return "", domain.Infrastructure(fmt.Errorf("no extension for %s", media), "unsupported audio mime type %q", mimeType)
	}

	return fmt.Sprintf("poem/%s/%d%s", poemID, c.factory.now().UnixMilli(), m.Extension()), nil
}

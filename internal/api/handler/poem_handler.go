package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/verse-journal/internal/api/dto"
	"github.com/cuongbtq/verse-journal/internal/api/trigger"
	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PoemHandler handles poem generation and retrieval
type PoemHandler struct {
	logger *slog.Logger
	poems  Poems
	text   Trigger
	audio  Trigger
}

func NewPoemHandler(deps *Dependencies) *PoemHandler {
	return &PoemHandler{
		logger: deps.Logger,
		poems:  deps.Poems,
		text:   deps.TextTrigger,
		audio:  deps.AudioTrigger,
	}
}

// CreatePoem handles POST /api/v1/poems
// Queues text generation for a journal
func (h *PoemHandler) CreatePoem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.logger, domain.ErrUnauthorized)
		return
	}

	var req dto.CreatePoemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	h.respondTrigger(c, h.text, uid, uuid.MustParse(req.JournalID))
}

// CreateAudio handles POST /api/v1/poems/:id/audio
// Queues narration of a poem
func (h *PoemHandler) CreateAudio(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.logger, domain.ErrUnauthorized)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	h.respondTrigger(c, h.audio, uid, id)
}

// respondTrigger answers 200 for an already completed job and 202 otherwise
func (h *PoemHandler) respondTrigger(c *gin.Context, t Trigger, uid, subjectID uuid.UUID) {
	res, err := t.Trigger(c.Request.Context(), uid, subjectID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	status := http.StatusAccepted
	if res.Done() {
		status = http.StatusOK
	}
	c.JSON(status, acceptedOf(res))
}

func acceptedOf(res *trigger.Result) dto.JobAccepted {
	return dto.JobAccepted{JobID: res.JobID, State: string(res.State)}
}

// GetPoem handles GET /api/v1/poems/:id
func (h *PoemHandler) GetPoem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.logger, domain.ErrUnauthorized)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	view, err := h.poems.Get(c.Request.Context(), uid, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPoemDTO(view))
}

// DeletePoem handles DELETE /api/v1/poems/:id
func (h *PoemHandler) DeletePoem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.logger, domain.ErrUnauthorized)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.poems.Delete(c.Request.Context(), uid, id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAudio handles DELETE /api/v1/poems/:id/file
func (h *PoemHandler) DeleteAudio(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.logger, domain.ErrUnauthorized)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.poems.DeleteAudio(c.Request.Context(), uid, id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/verse-journal/internal/api/dto"
	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/storage"
	"github.com/gin-gonic/gin"
)

// JournalHandler handles journal CRUD
type JournalHandler struct {
	logger   *slog.Logger
	journals Journals
}

func NewJournalHandler(deps *Dependencies) *JournalHandler {
	return &JournalHandler{logger: deps.Logger, journals: deps.Journals}
}

// CreateJournal handles POST /api/v1/journals
func (h *JournalHandler) CreateJournal(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.logger, domain.ErrUnauthorized)
		return
	}

	var req dto.CreateJournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	journal, err := h.journals.Create(c.Request.Context(), uid, req.Input())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewJournalDTO(journal))
}

// GetJournal handles GET /api/v1/journals/:id
func (h *JournalHandler) GetJournal(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.logger, domain.ErrUnauthorized)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	journal, err := h.journals.Get(c.Request.Context(), uid, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewJournalDTO(journal))
}

// ListJournals handles GET /api/v1/journals
func (h *JournalHandler) ListJournals(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.logger, domain.ErrUnauthorized)
		return
	}

	var req dto.ListJournalsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = dto.DefaultPageSize
	}
	if req.PageSize > dto.MaxPageSize {
		req.PageSize = dto.MaxPageSize
	}

	cursor, err := DecodeJournalCursor(req.Cursor)
	if err != nil {
		h.logger.Debug("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	page, err := h.journals.List(c.Request.Context(), storage.JournalFilter{
		UserID:   uid,
		Topic:    req.Topic,
		Emotion:  req.Emotion,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	resp := dto.ListJournalsResponse{Journals: make([]dto.JournalDTO, len(page.Journals))}
	for i := range page.Journals {
		resp.Journals[i] = dto.NewJournalDTO(&page.Journals[i])
	}
	if page.Next != nil {
		resp.NextCursor = EncodeJournalCursor(page.Next)
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateJournal handles PATCH /api/v1/journals/:id
func (h *JournalHandler) UpdateJournal(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.logger, domain.ErrUnauthorized)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateJournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	journal, err := h.journals.Update(c.Request.Context(), uid, id, req.Input())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewJournalDTO(journal))
}

// DeleteJournal handles DELETE /api/v1/journals/:id
func (h *JournalHandler) DeleteJournal(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.logger, domain.ErrUnauthorized)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.journals.Delete(c.Request.Context(), uid, id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

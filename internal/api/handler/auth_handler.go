package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/verse-journal/internal/api/command"
	"github.com/cuongbtq/verse-journal/internal/api/dto"
	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/gin-gonic/gin"
)

// AuthHandler handles registration and login
type AuthHandler struct {
	logger   *slog.Logger
	accounts Accounts
}

func NewAuthHandler(deps *Dependencies) *AuthHandler {
	return &AuthHandler{logger: deps.Logger, accounts: deps.Accounts}
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	session, err := h.accounts.Register(c.Request.Context(), command.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSessionResponse(session))
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	session, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSessionResponse(session))
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.logger, domain.ErrUnauthorized)
		return
	}

	session, err := h.accounts.Me(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSessionResponse(session))
}

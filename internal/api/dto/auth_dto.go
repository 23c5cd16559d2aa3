package dto

import (
	"time"

	"github.com/cuongbtq/verse-journal/internal/api/command"
)

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Name     string `json:"name" binding:"required,max=100"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UserDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type SessionResponse struct {
	User        UserDTO  `json:"user"`
	AccessToken string   `json:"accessToken,omitempty"`
	Permissions []string `json:"permissions"`
}

// NewSessionResponse flattens a session for the wire
func NewSessionResponse(s *command.Session) SessionResponse {
	perms := make([]string, len(s.Permissions))
	for i, p := range s.Permissions {
		perms[i] = string(p)
	}
	return SessionResponse{
		User: UserDTO{
			ID:        s.User.ID.String(),
			Email:     s.User.Email,
			Name:      s.User.Name,
			Role:      s.User.Role,
			CreatedAt: s.User.CreatedAt,
		},
		AccessToken: s.AccessToken,
		Permissions: perms,
	}
}

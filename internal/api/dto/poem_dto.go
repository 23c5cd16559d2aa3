package dto

import (
	"time"

	"github.com/cuongbtq/verse-journal/internal/api/command"
)

type CreatePoemRequest struct {
	JournalID string `json:"journalId" binding:"required,uuid"`
}

type PoemDTO struct {
	ID        string     `json:"id"`
	JournalID string     `json:"journalId"`
	Title     string     `json:"title"`
	Stanzas   [][]string `json:"stanzas"`
	AudioURL  string     `json:"audioUrl,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func NewPoemDTO(v *command.PoemView) PoemDTO {
	return PoemDTO{
		ID:        v.Poem.ID.String(),
		JournalID: v.Poem.JournalID.String(),
		Title:     v.Poem.Content.Title,
		Stanzas:   v.Poem.Content.Stanzas,
		AudioURL:  v.AudioURL,
		CreatedAt: v.Poem.CreatedAt,
		UpdatedAt: v.Poem.UpdatedAt,
	}
}

package dto

import (
	"time"

	"github.com/cuongbtq/verse-journal/internal/api/command"
	"github.com/cuongbtq/verse-journal/internal/model"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type CreateJournalRequest struct {
	Title     string     `json:"title" binding:"max=200"`
	Content   string     `json:"content" binding:"required"`
	Emotions  []string   `json:"emotions" binding:"max=20,dive,required,max=50"`
	Topics    []string   `json:"topics" binding:"max=20,dive,required,max=50"`
	Date      *time.Time `json:"date"`
	IsPrivate bool       `json:"isPrivate"`
}

// Input converts the request to command input
func (r *CreateJournalRequest) Input() command.CreateJournalInput {
	return command.CreateJournalInput{
		Title:     r.Title,
		Content:   r.Content,
		Emotions:  r.Emotions,
		Topics:    r.Topics,
		Date:      r.Date,
		IsPrivate: r.IsPrivate,
	}
}

type UpdateJournalRequest struct {
	Title     *string    `json:"title" binding:"omitempty,max=200"`
	Content   *string    `json:"content" binding:"omitempty,min=1"`
	Emotions  *[]string  `json:"emotions" binding:"omitempty,max=20,dive,required,max=50"`
	Topics    *[]string  `json:"topics" binding:"omitempty,max=20,dive,required,max=50"`
	Date      *time.Time `json:"date"`
	IsPrivate *bool      `json:"isPrivate"`
}

// Input converts the request to command input
func (r *UpdateJournalRequest) Input() command.UpdateJournalInput {
	return command.UpdateJournalInput{
		Title:     r.Title,
		Content:   r.Content,
		Emotions:  r.Emotions,
		Topics:    r.Topics,
		Date:      r.Date,
		IsPrivate: r.IsPrivate,
	}
}

type ListJournalsRequest struct {
	Topic    string `form:"topic"`
	Emotion  string `form:"emotion"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1"`
	Cursor   string `form:"cursor"`
}

type JournalDTO struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Emotions  []string  `json:"emotions"`
	Topics    []string  `json:"topics"`
	Date      time.Time `json:"date"`
	IsPrivate bool      `json:"isPrivate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ListJournalsResponse struct {
	Journals   []JournalDTO `json:"journals"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

func NewJournalDTO(j *model.Journal) JournalDTO {
	return JournalDTO{
		ID:        j.ID.String(),
		Title:     j.Title,
		Content:   j.Content,
		Emotions:  j.Emotions,
		Topics:    j.Topics,
		Date:      j.Date,
		IsPrivate: j.IsPrivate,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

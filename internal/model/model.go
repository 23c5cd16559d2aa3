package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/jobid"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type User struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Email     string     `db:"email" json:"email"`
	Name      string     `db:"name" json:"name"`
	Password  string     `db:"password" json:"-"`
	Role      string     `db:"role" json:"role"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

type Journal struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	UserID    uuid.UUID      `db:"user_id" json:"userId"`
	Title     string         `db:"title" json:"title"`
	Content   string         `db:"content" json:"content"`
	Emotions  pq.StringArray `db:"emotions" json:"emotions"`
	Topics    pq.StringArray `db:"topics" json:"topics"`
	Date      time.Time      `db:"date" json:"date"`
	IsPrivate bool           `db:"is_private" json:"isPrivate"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
	DeletedAt *time.Time     `db:"deleted_at" json:"-"`
}

// DefaultJournalTitle is used when a journal is created without a title.
const DefaultJournalTitle = "Untitled Journal"

// PoemContent is the structured poem returned by the generation provider.
type PoemContent struct {
	Title   string     `json:"title" validate:"required"`
	Stanzas [][]string `json:"stanzas" validate:"required,min=1,dive,min=1,dive,required"`
}

// Value implements driver.Valuer for the jsonb column.
func (c PoemContent) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for the jsonb column.
func (c *PoemContent) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = PoemContent{}
		return nil
	}
	return fmt.Errorf("unsupported poem content type %T", src)
}

type Poem struct {
	ID        uuid.UUID     `db:"id" json:"id"`
	JournalID uuid.UUID     `db:"journal_id" json:"journalId"`
	Content   PoemContent   `db:"content" json:"content"`
	FileID    uuid.NullUUID `db:"file_id" json:"fileId"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
	DeletedAt *time.Time    `db:"deleted_at" json:"-"`
}

// IsDeleted reports whether the poem is archived.
func (p *Poem) IsDeleted() bool {
	return p.DeletedAt != nil
}

// File is the reference row for a stored artifact.
type File struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Key          string     `db:"key" json:"key"`
	MimeType     string     `db:"mime_type" json:"mimeType"`
	Size         int64      `db:"size" json:"size"`
	OriginalName string     `db:"original_name" json:"originalName"`
	IsPublic     bool       `db:"is_public" json:"isPublic"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt    *time.Time `db:"deleted_at" json:"-"`
}

// JobPayload is what a command receives.
type JobPayload struct {
	SubjectID   uuid.UUID `json:"subjectId"`
	RequestedBy uuid.UUID `json:"requestedBy"`
}

// Job is the durable record of a queued generation job.
type Job struct {
	JobID        string          `db:"job_id"`
	Queue        string          `db:"queue"`
	Kind         domain.JobKind  `db:"kind"`
	SubjectID    uuid.UUID       `db:"subject_id"`
	RequestedBy  uuid.UUID       `db:"requested_by"`
	State        domain.JobState `db:"state"`
	Attempts     int             `db:"attempts"`
	MaxAttempts  int             `db:"max_attempts"`
	FailedReason string          `db:"failed_reason"`
	LockedUntil  *time.Time      `db:"locked_until"`
	ExpiresAt    *time.Time      `db:"expires_at"`
	FinishedAt   *time.Time      `db:"finished_at"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// ID parses the stored identity.
func (j *Job) ID() (jobid.ID, error) {
	return jobid.Parse(j.JobID)
}

// Payload returns the command input for this job.
func (j *Job) Payload() JobPayload {
	return JobPayload{SubjectID: j.SubjectID, RequestedBy: j.RequestedBy}
}

// CanRetry reports whether another attempt is allowed.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/jobid"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/cuongbtq/verse-journal/internal/queue"
	"github.com/cuongbtq/verse-journal/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeSubjects struct {
	journals map[uuid.UUID]*model.Journal
	poems    map[uuid.UUID]*model.Poem
}

func newFakeSubjects() *fakeSubjects {
	return &fakeSubjects{journals: map[uuid.UUID]*model.Journal{}, poems: map[uuid.UUID]*model.Poem{}}
}

func (s *fakeSubjects) GetJournal(_ context.Context, id uuid.UUID) (*model.Journal, error) {
	if j, ok := s.journals[id]; ok {
		return j, nil
	}
	return nil, fmt.Errorf("get journal: %w", storage.ErrNotFound)
}

func (s *fakeSubjects) GetPoem(_ context.Context, id uuid.UUID) (*model.Poem, error) {
	if p, ok := s.poems[id]; ok && !p.IsDeleted() {
		return p, nil
	}
	return nil, fmt.Errorf("get poem: %w", storage.ErrNotFound)
}

func (s *fakeSubjects) FindPoemByJournal(_ context.Context, journalID uuid.UUID, withDeleted bool) (*model.Poem, error) {
	for _, p := range s.poems {
		if p.JournalID == journalID && (withDeleted || !p.IsDeleted()) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("find poem: %w", storage.ErrNotFound)
}

type fakeTokens struct {
	count int
	err   error
	calls int
}

func (f *fakeTokens) CountTokens(context.Context, string) (int, error) {
	f.calls++
	return f.count, f.err
}

// fakeJobs keeps one live job per identity, like the queue runtime
type fakeJobs struct {
	live      map[string]*queue.Handle
	enqueued  []queue.EnqueueRequest
	lookupErr error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{live: map[string]*queue.Handle{}}
}

func (q *fakeJobs) Lookup(_ context.Context, id jobid.ID) (*queue.Handle, error) {
	if q.lookupErr != nil {
		return nil, q.lookupErr
	}
	if h, ok := q.live[id.String()]; ok {
		return h, nil
	}
	return nil, queue.ErrJobNotFound
}

func (q *fakeJobs) Enqueue(_ context.Context, req queue.EnqueueRequest) (*queue.Handle, error) {
	id, err := req.Kind.JobID(req.SubjectID.String())
	if err != nil {
		return nil, err
	}
	q.enqueued = append(q.enqueued, req)
	h := queue.NewHandle(id, req.Kind, domain.JobStateWaiting)
	q.live[id.String()] = h
	return h, nil
}

func TestText_Trigger(t *testing.T) {
	owner := uuid.New()
	subjects := newFakeSubjects()
	journal := &model.Journal{ID: uuid.New(), UserID: owner, Content: "long enough"}
	subjects.journals[journal.ID] = journal
	jobs := newFakeJobs()
	text := NewText(subjects, &fakeTokens{count: MinJournalTokens}, jobs, testLogger())

	first, err := text.Trigger(context.Background(), owner, journal.ID)
	require.NoError(t, err)
	assert.Equal(t, "poetry:text:"+journal.ID.String(), first.JobID)
	assert.Equal(t, domain.JobStateWaiting, first.State)
	assert.False(t, first.Done())

	second, err := text.Trigger(context.Background(), owner, journal.ID)
	require.NoError(t, err)
	assert.Equal(t, first.JobID, second.JobID)
	require.Len(t, jobs.enqueued, 1)
	assert.Equal(t, owner, jobs.enqueued[0].RequestedBy)
}

func TestText_ReturnsFinishedJobState(t *testing.T) {
	owner := uuid.New()
	subjects := newFakeSubjects()
	journal := &model.Journal{ID: uuid.New(), UserID: owner}
	subjects.journals[journal.ID] = journal
	jobs := newFakeJobs()
	id, err := domain.JobKindText.JobID(journal.ID.String())
	require.NoError(t, err)
	jobs.live[id.String()] = queue.NewHandle(id, domain.JobKindText, domain.JobStateFailed)

	res, err := NewText(subjects, &fakeTokens{count: 500}, jobs, testLogger()).Trigger(context.Background(), owner, journal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, res.State)
	assert.Empty(t, jobs.enqueued)
}

func TestText_Rejections(t *testing.T) {
	owner := uuid.New()
	deletedAt := time.Now()

	tests := []struct {
		name       string
		userID     uuid.UUID
		missing    bool
		poem       *model.Poem
		tokens     *fakeTokens
		lookupErr  error
		wantErr    error
		wantCounts bool
	}{
		{name: "missing journal", userID: owner, missing: true, tokens: &fakeTokens{count: 500}, wantErr: domain.ErrNotFound},
		{name: "not the owner", userID: uuid.New(), tokens: &fakeTokens{count: 500}, wantErr: domain.ErrForbidden},
		{name: "live poem", userID: owner, poem: &model.Poem{ID: uuid.New()}, tokens: &fakeTokens{count: 500}, wantErr: domain.ErrConflict},
		{name: "tokenizer down", userID: owner, tokens: &fakeTokens{err: errors.New("503")}, wantErr: domain.ErrRetryableUnavailable, wantCounts: true},
		{name: "tokenizer returned nothing", userID: owner, tokens: &fakeTokens{count: 0}, wantErr: domain.ErrRetryableUnavailable, wantCounts: true},
		{name: "too short", userID: owner, tokens: &fakeTokens{count: MinJournalTokens - 1}, wantErr: domain.ErrUnprocessableContent, wantCounts: true},
		{name: "lookup failure after archived poem", userID: owner, poem: &model.Poem{ID: uuid.New(), DeletedAt: &deletedAt}, tokens: &fakeTokens{count: 500}, lookupErr: errors.New("db down"), wantErr: domain.ErrInfrastructure, wantCounts: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subjects := newFakeSubjects()
			journal := &model.Journal{ID: uuid.New(), UserID: owner}
			if !tt.missing {
				subjects.journals[journal.ID] = journal
			}
			if tt.poem != nil {
				tt.poem.JournalID = journal.ID
				subjects.poems[tt.poem.ID] = tt.poem
			}
			jobs := newFakeJobs()
			jobs.lookupErr = tt.lookupErr

			_, err := NewText(subjects, tt.tokens, jobs, testLogger()).Trigger(context.Background(), tt.userID, journal.ID)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, jobs.enqueued)
			assert.Equal(t, tt.wantCounts, tt.tokens.calls > 0)
		})
	}
}

func TestAudio_Trigger(t *testing.T) {
	owner := uuid.New()
	subjects := newFakeSubjects()
	journal := &model.Journal{ID: uuid.New(), UserID: owner}
	subjects.journals[journal.ID] = journal
	poem := &model.Poem{ID: uuid.New(), JournalID: journal.ID}
	subjects.poems[poem.ID] = poem
	jobs := newFakeJobs()
	audio := NewAudio(subjects, jobs, testLogger())

	res, err := audio.Trigger(context.Background(), owner, poem.ID)
	require.NoError(t, err)
	assert.Equal(t, "poetry:audio:"+poem.ID.String(), res.JobID)

	_, err = audio.Trigger(context.Background(), uuid.New(), poem.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = audio.Trigger(context.Background(), owner, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAudio_ConflictLeavesQueueUntouched(t *testing.T) {
	owner := uuid.New()
	subjects := newFakeSubjects()
	journal := &model.Journal{ID: uuid.New(), UserID: owner}
	subjects.journals[journal.ID] = journal
	poem := &model.Poem{ID: uuid.New(), JournalID: journal.ID, FileID: uuid.NullUUID{UUID: uuid.New(), Valid: true}}
	subjects.poems[poem.ID] = poem
	jobs := newFakeJobs()

	_, err := NewAudio(subjects, jobs, testLogger()).Trigger(context.Background(), owner, poem.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, jobs.enqueued)
}

func completedJob(t *testing.T, jobs *fakeJobs, kind domain.JobKind, subject uuid.UUID) {
	t.Helper()
	id, err := kind.JobID(subject.String())
	require.NoError(t, err)
	jobs.live[id.String()] = queue.NewHandle(id, kind, domain.JobStateCompleted)
}

func TestText_RegeneratesAfterPoemDeleted(t *testing.T) {
	owner := uuid.New()
	deletedAt := time.Now()
	subjects := newFakeSubjects()
	journal := &model.Journal{ID: uuid.New(), UserID: owner}
	subjects.journals[journal.ID] = journal
	poem := &model.Poem{ID: uuid.New(), JournalID: journal.ID, DeletedAt: &deletedAt}
	subjects.poems[poem.ID] = poem
	jobs := newFakeJobs()
	completedJob(t, jobs, domain.JobKindText, journal.ID)

	res, err := NewText(subjects, &fakeTokens{count: 500}, jobs, testLogger()).Trigger(context.Background(), owner, journal.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStateWaiting, res.State)
	assert.False(t, res.Done())
	require.Len(t, jobs.enqueued, 1)
	assert.Equal(t, journal.ID, jobs.enqueued[0].SubjectID)
}

// landingSubjects reports no poem on the first lookup and a live one after,
// as when a job commits between the admission gate and the queue lookup.
type landingSubjects struct {
	*fakeSubjects
	poem  *model.Poem
	calls int
}

func (s *landingSubjects) FindPoemByJournal(_ context.Context, journalID uuid.UUID, _ bool) (*model.Poem, error) {
	s.calls++
	if s.calls == 1 || s.poem.JournalID != journalID {
		return nil, fmt.Errorf("find poem: %w", storage.ErrNotFound)
	}
	return s.poem, nil
}

func TestText_CompletedJobWithStandingResult(t *testing.T) {
	owner := uuid.New()
	journal := &model.Journal{ID: uuid.New(), UserID: owner}
	subjects := &landingSubjects{fakeSubjects: newFakeSubjects(), poem: &model.Poem{ID: uuid.New(), JournalID: journal.ID}}
	subjects.journals[journal.ID] = journal
	jobs := newFakeJobs()
	completedJob(t, jobs, domain.JobKindText, journal.ID)

	res, err := NewText(subjects, &fakeTokens{count: 500}, jobs, testLogger()).Trigger(context.Background(), owner, journal.ID)
	require.NoError(t, err)

	assert.True(t, res.Done())
	assert.Empty(t, jobs.enqueued)
	assert.Equal(t, 2, subjects.calls)
}

func TestAudio_RegeneratesAfterAudioDeleted(t *testing.T) {
	owner := uuid.New()
	subjects := newFakeSubjects()
	journal := &model.Journal{ID: uuid.New(), UserID: owner}
	subjects.journals[journal.ID] = journal
	poem := &model.Poem{ID: uuid.New(), JournalID: journal.ID}
	subjects.poems[poem.ID] = poem
	jobs := newFakeJobs()
	completedJob(t, jobs, domain.JobKindAudio, poem.ID)

	res, err := NewAudio(subjects, jobs, testLogger()).Trigger(context.Background(), owner, poem.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStateWaiting, res.State)
	require.Len(t, jobs.enqueued, 1)
	assert.Equal(t, poem.ID, jobs.enqueued[0].SubjectID)
}

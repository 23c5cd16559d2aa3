package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore mirrors the SQL semantics of Store
type memStore struct {
	mu   sync.Mutex
	jobs map[string]model.Job
	now  time.Time
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]model.Job{}, now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memStore) WithTx(*sqlx.Tx) JobStore { return m }

func (m *memStore) live(j model.Job) bool {
	return j.ExpiresAt == nil || j.ExpiresAt.After(m.now)
}

func (m *memStore) Insert(_ context.Context, job *model.Job) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.jobs[job.JobID]; ok && m.live(existing) && existing.State != domain.JobStateCompleted {
		*job = existing
		return false, nil
	}
	job.State = domain.JobStateWaiting
	job.Attempts = 0
	job.CreatedAt = m.now
	job.UpdatedAt = m.now
	m.jobs[job.JobID] = *job
	return true, nil
}

func (m *memStore) Get(_ context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || !m.live(j) {
		return nil, ErrJobNotFound
	}
	return &j, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && j.State == domain.JobStateWaiting && j.Attempts == 0 {
		delete(m.jobs, id)
	}
	return nil
}

func (m *memStore) Claim(_ context.Context, id string, lock time.Duration) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.State != domain.JobStateWaiting {
		return nil, ErrJobAlreadyClaimed
	}
	until := m.now.Add(lock)
	j.State = domain.JobStateActive
	j.Attempts++
	j.LockedUntil = &until
	m.jobs[id] = j
	return &j, nil
}

func (m *memStore) Finish(_ context.Context, job *model.Job, state domain.JobState, reason string, retention time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[job.JobID]
	if !ok || j.State != domain.JobStateActive || j.Attempts != job.Attempts {
		return ErrLockLost
	}
	expires := m.now.Add(retention)
	j.State = state
	j.FailedReason = reason
	j.LockedUntil = nil
	j.ExpiresAt = &expires
	finished := m.now
	j.FinishedAt = &finished
	m.jobs[job.JobID] = j
	*job = j
	return nil
}

func (m *memStore) Requeue(_ context.Context, job *model.Job, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[job.JobID]
	if !ok || j.State != domain.JobStateActive || j.Attempts != job.Attempts {
		return ErrLockLost
	}
	j.State = domain.JobStateWaiting
	j.FailedReason = reason
	j.LockedUntil = nil
	m.jobs[job.JobID] = j
	*job = j
	return nil
}

func (m *memStore) Stalled(_ context.Context, limit int) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Job
	for _, j := range m.jobs {
		if j.State == domain.JobStateActive && j.LockedUntil != nil && j.LockedUntil.Before(m.now) {
			out = append(out, j)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) DeleteExpired(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, j := range m.jobs {
		if !m.live(j) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *memStore) state(id string) domain.JobState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id].State
}

type published struct {
	routingKey string
	body       string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) PublishWithRetry(_ context.Context, routingKey string, body []byte, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{routingKey: routingKey, body: string(body)})
	return nil
}

func (p *fakePublisher) PublishEvent(ctx context.Context, routingKey string, body []byte) error {
	return p.PublishWithRetry(ctx, routingKey, body, "application/json")
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testOptions() map[domain.JobKind]KindOptions {
	return map[domain.JobKind]KindOptions{
		domain.JobKindText: {
			RoutingKey:         "text",
			LockDuration:       5 * time.Minute,
			MaxAttempts:        1,
			CompletedRetention: time.Hour,
			FailedRetention:    5 * time.Minute,
		},
		domain.JobKindAudio: {
			RoutingKey:         "audio",
			LockDuration:       10 * time.Minute,
			MaxAttempts:        2,
			CompletedRetention: time.Hour,
			FailedRetention:    5 * time.Minute,
		},
	}
}

type fixture struct {
	store     *memStore
	publisher *fakePublisher
	emitter   *Emitter
	queue     *Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	pub := &fakePublisher{}
	emitter := NewEmitter(pub, 64, testLogger())
	q, err := New(store, pub, emitter, testOptions(), testLogger())
	require.NoError(t, err)
	return &fixture{store: store, publisher: pub, emitter: emitter, queue: q}
}

// drained returns the event types emitted so far
func (f *fixture) drained() []Event {
	var out []Event
	for {
		select {
		case ev := <-f.emitter.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func types(events []Event) []domain.EventType {
	out := make([]domain.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestNew_RequiresOptionsForEveryKind(t *testing.T) {
	opts := testOptions()
	delete(opts, domain.JobKindAudio)

	_, err := New(newMemStore(), &fakePublisher{}, nil, opts, testLogger())
	assert.Error(t, err)

	opts = testOptions()
	text := opts[domain.JobKindText]
	text.MaxAttempts = 0
	opts[domain.JobKindText] = text
	_, err = New(newMemStore(), &fakePublisher{}, nil, opts, testLogger())
	assert.Error(t, err)
}

func TestEnqueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subject := uuid.New()

	h, err := f.queue.Enqueue(ctx, EnqueueRequest{Kind: domain.JobKindText, SubjectID: subject, RequestedBy: uuid.New()})
	require.NoError(t, err)

	assert.Equal(t, "poetry:text:"+subject.String(), h.ID.String())
	assert.Equal(t, domain.JobStateWaiting, h.State())
	require.Len(t, f.publisher.sent, 1)
	assert.Equal(t, "text", f.publisher.sent[0].routingKey)
	assert.JSONEq(t, `{"jobId":"poetry:text:`+subject.String()+`"}`, f.publisher.sent[0].body)
	assert.Equal(t, []domain.EventType{domain.EventAdded, domain.EventWaiting}, types(f.drained()))
}

func TestEnqueue_Deduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := EnqueueRequest{Kind: domain.JobKindAudio, SubjectID: uuid.New(), RequestedBy: uuid.New()}

	first, err := f.queue.Enqueue(ctx, req)
	require.NoError(t, err)
	second, err := f.queue.Enqueue(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.publisher.sent, 1)
	assert.Len(t, f.drained(), 2)
}

func TestEnqueue_ReusesExpiredIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := EnqueueRequest{Kind: domain.JobKindText, SubjectID: uuid.New(), RequestedBy: uuid.New()}

	h, err := f.queue.Enqueue(ctx, req)
	require.NoError(t, err)
	job, err := f.queue.Claim(ctx, h.ID)
	require.NoError(t, err)
	require.NoError(t, f.queue.Fail(ctx, job, errors.New("boom")))

	found, err := f.queue.Lookup(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, found.State())
	assert.Equal(t, "boom", found.FailedReason)

	f.store.advance(6 * time.Minute)
	_, err = f.queue.Lookup(ctx, h.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	again, err := f.queue.Enqueue(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, h.ID, again.ID)
	assert.Equal(t, domain.JobStateWaiting, again.State())
	assert.Len(t, f.publisher.sent, 2)
}

func TestEnqueue_PublishFailureRemovesJob(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("channel closed")
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, EnqueueRequest{Kind: domain.JobKindText, SubjectID: uuid.New()})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
	assert.Empty(t, f.store.jobs)
	assert.Empty(t, f.drained(), "no lifecycle event for a job that was never delivered")
}

func TestEnqueue_ReplacesCompletedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := EnqueueRequest{Kind: domain.JobKindText, SubjectID: uuid.New(), RequestedBy: uuid.New()}

	h, err := f.queue.Enqueue(ctx, req)
	require.NoError(t, err)
	job, err := f.queue.Claim(ctx, h.ID)
	require.NoError(t, err)
	require.NoError(t, f.queue.MarkCompleted(ctx, nil, job))
	f.store.advance(10 * time.Minute)

	found, err := f.queue.Lookup(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateCompleted, found.State())

	again, err := f.queue.Enqueue(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateWaiting, again.State())
	assert.Len(t, f.publisher.sent, 2)

	// The fresh attempt is claimable again
	_, err = f.queue.Claim(ctx, h.ID)
	assert.NoError(t, err)
}

func TestClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.queue.Enqueue(ctx, EnqueueRequest{Kind: domain.JobKindAudio, SubjectID: uuid.New()})
	require.NoError(t, err)
	f.drained()

	job, err := f.queue.Claim(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateActive, job.State)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, f.store.now.Add(10*time.Minute), *job.LockedUntil)

	_, err = f.queue.Claim(ctx, h.ID)
	assert.ErrorIs(t, err, ErrJobAlreadyClaimed)
	assert.Equal(t, []domain.EventType{domain.EventActive}, types(f.drained()))
}

func TestMarkCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.queue.Enqueue(ctx, EnqueueRequest{Kind: domain.JobKindText, SubjectID: uuid.New()})
	require.NoError(t, err)
	job, err := f.queue.Claim(ctx, h.ID)
	require.NoError(t, err)

	require.NoError(t, f.queue.MarkCompleted(ctx, nil, job))
	assert.Equal(t, domain.JobStateCompleted, f.store.state(job.JobID))

	// A second completion for the same attempt lost its lock.
	assert.ErrorIs(t, f.queue.MarkCompleted(ctx, nil, job), ErrLockLost)
}

func TestFail(t *testing.T) {
	transient := domain.NewRetryableError(errors.New("rate limited"))
	permanent := errors.New("schema violation")

	tests := []struct {
		name       string
		kind       domain.JobKind
		cause      error
		wantState  domain.JobState
		wantEvent  domain.EventType
		wantResent bool
	}{
		{name: "retryable with attempts left", kind: domain.JobKindAudio, cause: transient, wantState: domain.JobStateWaiting, wantEvent: domain.EventWaiting, wantResent: true},
		{name: "retryable without attempts left", kind: domain.JobKindText, cause: transient, wantState: domain.JobStateFailed, wantEvent: domain.EventFailed},
		{name: "not retryable", kind: domain.JobKindAudio, cause: permanent, wantState: domain.JobStateFailed, wantEvent: domain.EventFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			h, err := f.queue.Enqueue(ctx, EnqueueRequest{Kind: tt.kind, SubjectID: uuid.New()})
			require.NoError(t, err)
			job, err := f.queue.Claim(ctx, h.ID)
			require.NoError(t, err)
			f.drained()

			require.NoError(t, f.queue.Fail(ctx, job, tt.cause))
			assert.Equal(t, tt.wantState, f.store.state(job.JobID))

			events := f.drained()
			require.Len(t, events, 1)
			assert.Equal(t, tt.wantEvent, events[0].Type)
			if tt.wantEvent == domain.EventFailed {
				assert.Equal(t, tt.cause.Error(), events[0].Reason)
			}

			if tt.wantResent {
				assert.Len(t, f.publisher.sent, 2)
			} else {
				assert.Len(t, f.publisher.sent, 1)
			}
		})
	}
}

func TestFail_LockLostIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.queue.Enqueue(ctx, EnqueueRequest{Kind: domain.JobKindText, SubjectID: uuid.New()})
	require.NoError(t, err)
	job, err := f.queue.Claim(ctx, h.ID)
	require.NoError(t, err)

	stale := *job
	stale.Attempts = 0
	f.drained()

	assert.NoError(t, f.queue.Fail(ctx, &stale, errors.New("late")))
	assert.Equal(t, domain.JobStateActive, f.store.state(job.JobID))
	assert.Empty(t, f.drained())
}

func TestMonitor_CheckStalled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	monitor := NewMonitor(f.queue, time.Second, time.Second, testLogger())

	text, err := f.queue.Enqueue(ctx, EnqueueRequest{Kind: domain.JobKindText, SubjectID: uuid.New()})
	require.NoError(t, err)
	audio, err := f.queue.Enqueue(ctx, EnqueueRequest{Kind: domain.JobKindAudio, SubjectID: uuid.New()})
	require.NoError(t, err)
	_, err = f.queue.Claim(ctx, text.ID)
	require.NoError(t, err)
	_, err = f.queue.Claim(ctx, audio.ID)
	require.NoError(t, err)
	f.drained()

	f.store.advance(6 * time.Minute)
	require.NoError(t, monitor.CheckStalled(ctx))

	// The text lock has expired and its only attempt is spent.
	failed, err := f.queue.Lookup(ctx, text.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, failed.State())
	assert.Equal(t, StalledReason, failed.FailedReason)
	assert.Equal(t, domain.JobStateActive, f.store.state(audio.ID.String()))

	f.store.advance(5 * time.Minute)
	require.NoError(t, monitor.CheckStalled(ctx))
	assert.Equal(t, domain.JobStateWaiting, f.store.state(audio.ID.String()))
}

func TestMonitor_Sweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	monitor := NewMonitor(f.queue, time.Second, time.Second, testLogger())

	h, err := f.queue.Enqueue(ctx, EnqueueRequest{Kind: domain.JobKindText, SubjectID: uuid.New()})
	require.NoError(t, err)
	job, err := f.queue.Claim(ctx, h.ID)
	require.NoError(t, err)
	require.NoError(t, f.queue.MarkCompleted(ctx, nil, job))

	require.NoError(t, monitor.Sweep(ctx))
	assert.Len(t, f.store.jobs, 1)

	f.store.advance(2 * time.Hour)
	require.NoError(t, monitor.Sweep(ctx))
	assert.Empty(t, f.store.jobs)
}

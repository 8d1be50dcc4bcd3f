package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trannm/mediascribe/internal/domain"
	"github.com/trannm/mediascribe/shared/logger"
)

const testJobID = "b0c9dd70-9f3a-4f38-9b2f-6a70be7e9c10"
const testKey = "videos/" + testJobID + "_lecture.mp4"

type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*domain.Job)}
}

func (s *fakeStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *fakeStore) CreateUploaded(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return nil
	}
	copied := *job
	copied.Status = domain.StatusUploaded
	s.jobs[job.JobID] = &copied
	return nil
}

func (s *fakeStore) MarkQueued(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.StatusUploaded {
		return domain.ErrClaimConflict
	}
	job.Status = domain.StatusQueued
	return nil
}

func (s *fakeStore) RevertQueued(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.StatusQueued {
		return domain.ErrClaimConflict
	}
	job.Status = domain.StatusUploaded
	return nil
}

func (s *fakeStore) status(jobID string) domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[jobID].Status
}

type fakePublisher struct {
	mu       sync.Mutex
	messages [][]byte
	failWith error
}

func (p *fakePublisher) PublishWithRetry(_ context.Context, body []byte, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.messages = append(p.messages, body)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func TestTrigger_OnObjectStored(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	trigger := NewTrigger(store, publisher, logger.NewDefault().Logger)

	jobID, err := trigger.OnObjectStored(context.Background(), "uploads", testKey)
	require.NoError(t, err)
	assert.Equal(t, testJobID, jobID)

	// Record was derived from the key and queued
	assert.Equal(t, domain.StatusQueued, store.status(testJobID))
	require.Equal(t, 1, publisher.count())

	var msg domain.WorkMessage
	require.NoError(t, json.Unmarshal(publisher.messages[0], &msg))
	assert.Equal(t, testJobID, msg.JobID)
	assert.Equal(t, "uploads", msg.SourceBucket)
	assert.Equal(t, testKey, msg.SourceKey)
	assert.False(t, msg.EnqueuedAt.IsZero())
}

func TestTrigger_OnObjectStored_DecodesEncodedKeys(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	trigger := NewTrigger(store, publisher, logger.NewDefault().Logger)

	// Storage notifications URL-encode object keys: spaces arrive as '+'
	// and non-ASCII characters percent-encoded.
	encoded := "videos/" + testJobID + "_My+Lecture+%234%20%E2%80%93%20caf%C3%A9.mp4"
	wantKey := "videos/" + testJobID + "_My Lecture #4 – café.mp4"

	jobID, err := trigger.OnObjectStored(context.Background(), "uploads", encoded)
	require.NoError(t, err)
	assert.Equal(t, testJobID, jobID)

	// The record and the work message carry the real object key, not the
	// encoded form the notification delivered.
	job, err := store.Get(context.Background(), testJobID)
	require.NoError(t, err)
	assert.Equal(t, wantKey, job.SourceKey)
	assert.Equal(t, "My Lecture #4 – café.mp4", job.Filename)

	require.Equal(t, 1, publisher.count())
	var msg domain.WorkMessage
	require.NoError(t, json.Unmarshal(publisher.messages[0], &msg))
	assert.Equal(t, wantKey, msg.SourceKey)
}

func TestTrigger_OnObjectStored_DuplicateEventIsIdempotent(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	trigger := NewTrigger(store, publisher, logger.NewDefault().Logger)

	_, err := trigger.OnObjectStored(context.Background(), "uploads", testKey)
	require.NoError(t, err)

	// Second delivery of the same event: no second record, message is
	// re-published but the job stays queued
	_, err = trigger.OnObjectStored(context.Background(), "uploads", testKey)
	require.NoError(t, err)

	assert.Len(t, store.jobs, 1)
	assert.Equal(t, domain.StatusQueued, store.status(testJobID))
}

func TestTrigger_OnObjectStored_SkipsTerminalAndInFlightJobs(t *testing.T) {
	for _, status := range []domain.Status{domain.StatusProcessing, domain.StatusCompleted, domain.StatusError} {
		t.Run(string(status), func(t *testing.T) {
			store := newFakeStore()
			store.jobs[testJobID] = &domain.Job{JobID: testJobID, Status: status}
			publisher := &fakePublisher{}
			trigger := NewTrigger(store, publisher, logger.NewDefault().Logger)

			jobID, err := trigger.OnObjectStored(context.Background(), "uploads", testKey)
			require.NoError(t, err)
			assert.Equal(t, testJobID, jobID)
			assert.Equal(t, 0, publisher.count())
			assert.Equal(t, status, store.status(testJobID))
		})
	}
}

func TestTrigger_OnObjectStored_EnqueueFailureRevertsStatus(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{failWith: errors.New("broker unavailable")}
	trigger := NewTrigger(store, publisher, logger.NewDefault().Logger)

	_, err := trigger.OnObjectStored(context.Background(), "uploads", testKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to enqueue")

	// Not left stranded in queued with no message in flight
	assert.Equal(t, domain.StatusUploaded, store.status(testJobID))
}

func TestTrigger_OnObjectStored_RejectsUnknownKeys(t *testing.T) {
	trigger := NewTrigger(newFakeStore(), &fakePublisher{}, logger.NewDefault().Logger)

	_, err := trigger.OnObjectStored(context.Background(), "uploads", "thumbnails/foo.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestTrigger_RegisterUpload(t *testing.T) {
	store := newFakeStore()
	trigger := NewTrigger(store, &fakePublisher{}, logger.NewDefault().Logger)

	job, err := trigger.RegisterUpload(context.Background(), testJobID, "lecture.mp4", "uploads", testKey)
	require.NoError(t, err)
	assert.Equal(t, domain.MediaTypeVideo, job.MediaType)
	assert.Equal(t, domain.StatusUploaded, store.status(testJobID))

	audio, err := trigger.RegisterUpload(context.Background(), "other-id", "talk.mp3", "uploads", "videos/other-id_talk.mp3")
	require.NoError(t, err)
	assert.Equal(t, domain.MediaTypeAudio, audio.MediaType)

	_, err = trigger.RegisterUpload(context.Background(), "bad-id", "malware.exe", "uploads", "videos/bad-id_malware.exe")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trannm/mediascribe/internal/blobstore"
	"github.com/trannm/mediascribe/internal/domain"
	"github.com/trannm/mediascribe/shared/logger"
)

const testJobID = "7f1c89ce-04a2-4b4e-8f37-0f2b9a8175d2"

func testMessage() *domain.WorkMessage {
	return &domain.WorkMessage{
		JobID:        testJobID,
		SourceBucket: "uploads",
		SourceKey:    "videos/" + testJobID + "_lecture.mp4",
		EnqueuedAt:   time.Now().UTC(),
	}
}

// memStore is an in-memory JobStore with the same claim semantics as the
// database: one winner per conditional transition.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemStore(jobs ...*domain.Job) *memStore {
	s := &memStore{jobs: make(map[string]*domain.Job)}
	for _, j := range jobs {
		s.jobs[j.JobID] = j
	}
	return s
}

func queuedJob() *domain.Job {
	return &domain.Job{
		JobID:        testJobID,
		Filename:     "lecture.mp4",
		SourceBucket: "uploads",
		SourceKey:    "videos/" + testJobID + "_lecture.mp4",
		MediaType:    domain.MediaTypeVideo,
		Status:       domain.StatusQueued,
	}
}

func (s *memStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *memStore) Claim(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrClaimConflict
	}
	if job.Status != domain.StatusQueued && job.Status != domain.StatusError {
		return nil, domain.ErrClaimConflict
	}
	job.Status = domain.StatusProcessing
	job.AttemptCount++
	copied := *job
	return &copied, nil
}

func (s *memStore) Complete(_ context.Context, jobID, transcriptKey, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.StatusProcessing {
		return domain.ErrClaimConflict
	}
	job.Status = domain.StatusCompleted
	job.TranscriptKey = transcriptKey
	job.Summary = summary
	job.ErrorDetail = ""
	return nil
}

func (s *memStore) MarkError(_ context.Context, jobID, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.StatusProcessing {
		return domain.ErrClaimConflict
	}
	job.Status = domain.StatusError
	job.ErrorDetail = detail
	return nil
}

func (s *memStore) get(jobID string) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[jobID]
}

type memMedia struct {
	mu          sync.Mutex
	objects     map[string][]byte
	downloadErr error
	uploadErr   error
}

func newMemMedia() *memMedia {
	return &memMedia{objects: make(map[string][]byte)}
}

func (m *memMedia) Download(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	body, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s/%s", bucket, key)
	}
	return body, nil
}

func (m *memMedia) Upload(_ context.Context, key string, body []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return m.uploadErr
	}
	m.objects["results/"+key] = body
	return nil
}

type stubTranscriber struct {
	transcript string
	err        error
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ string, _ []byte) (string, error) {
	return s.transcript, s.err
}

type stubSummarizer struct {
	summary string
	err     error
}

func (s *stubSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	return s.summary, s.err
}

func newTestProcessor(store JobStore, media MediaStore, tr Transcriber, sum Summarizer) *Processor {
	return NewProcessor(store, media, tr, sum, time.Minute, logger.NewDefault().Logger)
}

func TestProcessor_Process_Success(t *testing.T) {
	store := newMemStore(queuedJob())
	media := newMemMedia()
	media.objects["uploads/videos/"+testJobID+"_lecture.mp4"] = []byte("fake media")

	processor := newTestProcessor(store, media,
		&stubTranscriber{transcript: "hello from the lecture"},
		&stubSummarizer{summary: "## Summary\nA lecture."},
	)

	outcome, err := processor.Process(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	job := store.get(testJobID)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, 1, job.AttemptCount)
	assert.Equal(t, blobstore.TranscriptKey(testJobID), job.TranscriptKey)
	assert.Equal(t, "## Summary\nA lecture.", job.Summary)
	assert.Empty(t, job.ErrorDetail)

	// Transcript stored before completion was recorded
	stored, ok := media.objects["results/"+blobstore.TranscriptKey(testJobID)]
	require.True(t, ok)
	assert.Equal(t, "hello from the lecture", string(stored))
}

func TestProcessor_Process_CompletedJobIsSkipped(t *testing.T) {
	job := queuedJob()
	job.Status = domain.StatusCompleted
	job.Summary = "done earlier"
	store := newMemStore(job)

	processor := newTestProcessor(store, newMemMedia(),
		&stubTranscriber{err: errors.New("must not be called")},
		&stubSummarizer{},
	)

	outcome, err := processor.Process(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	// The earlier result survives the redelivery untouched
	got := store.get(testJobID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "done earlier", got.Summary)
	assert.Equal(t, 0, got.AttemptCount)
}

func TestProcessor_Process_LostClaimIsSkipped(t *testing.T) {
	job := queuedJob()
	job.Status = domain.StatusProcessing
	store := newMemStore(job)

	processor := newTestProcessor(store, newMemMedia(), &stubTranscriber{}, &stubSummarizer{})

	outcome, err := processor.Process(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestProcessor_Process_OnlyOneConcurrentWinner(t *testing.T) {
	store := newMemStore(queuedJob())
	media := newMemMedia()
	media.objects["uploads/videos/"+testJobID+"_lecture.mp4"] = []byte("fake media")

	processor := newTestProcessor(store, media,
		&stubTranscriber{transcript: "text"},
		&stubSummarizer{summary: "summary"},
	)

	const racers = 8
	outcomes := make(chan Outcome, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, _ := processor.Process(context.Background(), testMessage())
			outcomes <- outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	var completed, skipped int
	for outcome := range outcomes {
		switch outcome {
		case OutcomeCompleted:
			completed++
		case OutcomeSkipped:
			skipped++
		default:
			t.Fatalf("unexpected outcome %s", outcome)
		}
	}

	assert.Equal(t, 1, completed)
	assert.Equal(t, racers-1, skipped)
	assert.Equal(t, 1, store.get(testJobID).AttemptCount)
}

func TestProcessor_Process_TransientFailureRecordsError(t *testing.T) {
	store := newMemStore(queuedJob())
	media := newMemMedia()
	media.objects["uploads/videos/"+testJobID+"_lecture.mp4"] = []byte("fake media")

	processor := newTestProcessor(store, media,
		&stubTranscriber{err: domain.NewTransientError(errors.New("engine returned 503"))},
		&stubSummarizer{},
	)

	outcome, err := processor.Process(context.Background(), testMessage())
	require.Error(t, err)
	assert.Equal(t, OutcomeTransient, outcome)

	job := store.get(testJobID)
	assert.Equal(t, domain.StatusError, job.Status)
	assert.Equal(t, 1, job.AttemptCount)
	assert.Contains(t, job.ErrorDetail, "engine returned 503")
}

func TestProcessor_Process_PermanentFailureRecordsError(t *testing.T) {
	store := newMemStore(queuedJob())
	media := newMemMedia()
	media.objects["uploads/videos/"+testJobID+"_lecture.mp4"] = []byte("fake media")

	processor := newTestProcessor(store, media,
		&stubTranscriber{err: errors.New("engine rejected file: 413")},
		&stubSummarizer{},
	)

	outcome, err := processor.Process(context.Background(), testMessage())
	require.Error(t, err)
	assert.Equal(t, OutcomePermanent, outcome)
	assert.Equal(t, domain.StatusError, store.get(testJobID).Status)
}

func TestProcessor_Process_DownloadFailureIsTransient(t *testing.T) {
	store := newMemStore(queuedJob())
	media := newMemMedia()
	media.downloadErr = errors.New("connection reset")

	processor := newTestProcessor(store, media, &stubTranscriber{}, &stubSummarizer{})

	outcome, err := processor.Process(context.Background(), testMessage())
	require.Error(t, err)
	assert.Equal(t, OutcomeTransient, outcome)
	assert.Contains(t, store.get(testJobID).ErrorDetail, "failed to download media")
}

func TestProcessor_Process_RetryAfterErrorSucceeds(t *testing.T) {
	job := queuedJob()
	job.Status = domain.StatusError
	job.AttemptCount = 1
	job.ErrorDetail = "engine returned 503"
	store := newMemStore(job)

	media := newMemMedia()
	media.objects["uploads/videos/"+testJobID+"_lecture.mp4"] = []byte("fake media")

	processor := newTestProcessor(store, media,
		&stubTranscriber{transcript: "second time lucky"},
		&stubSummarizer{summary: "it worked"},
	)

	outcome, err := processor.Process(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	got := store.get(testJobID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.AttemptCount)
	assert.Empty(t, got.ErrorDetail)
}

func TestProcessor_Process_UnknownJobIsPermanent(t *testing.T) {
	processor := newTestProcessor(newMemStore(), newMemMedia(), &stubTranscriber{}, &stubSummarizer{})

	outcome, err := processor.Process(context.Background(), testMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	assert.Equal(t, OutcomePermanent, outcome)
}

func TestDecodeWorkMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "valid message",
			body: `{"job_id":"` + testJobID + `","source_bucket":"uploads","source_key":"videos/x_y.mp4"}`,
		},
		{
			name:    "not json",
			body:    "not json at all",
			wantErr: true,
		},
		{
			name:    "job_id not a uuid",
			body:    `{"job_id":"42","source_bucket":"uploads","source_key":"videos/x_y.mp4"}`,
			wantErr: true,
		},
		{
			name:    "missing source key",
			body:    `{"job_id":"` + testJobID + `","source_bucket":"uploads"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := decodeWorkMessage([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testJobID, msg.JobID)
		})
	}
}

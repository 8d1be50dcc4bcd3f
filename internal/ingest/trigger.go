// Package ingest reacts to storage events: it records the job, transitions
// it to queued, and hands a work message to the queue.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/trannm/mediascribe/internal/blobstore"
	"github.com/trannm/mediascribe/internal/domain"
)

// JobStore is the slice of the job store the trigger mutates
type JobStore interface {
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	CreateUploaded(ctx context.Context, job *domain.Job) error
	MarkQueued(ctx context.Context, jobID string) error
	RevertQueued(ctx context.Context, jobID string) error
}

// Publisher sends work messages to the queue
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Trigger is the ingestion trigger
type Trigger struct {
	store     JobStore
	publisher Publisher
	logger    *slog.Logger
}

// NewTrigger creates a new Trigger
func NewTrigger(store JobStore, publisher Publisher, logger *slog.Logger) *Trigger {
	return &Trigger{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// RegisterUpload records a job for an object the client is about to upload
// (or has just uploaded) through its presigned URL. Safe to call more than
// once for the same job id.
func (t *Trigger) RegisterUpload(ctx context.Context, jobID, filename, bucket, key string) (*domain.Job, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	mediaType, ok := domain.MediaTypeForExtension(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
	}

	job := &domain.Job{
		JobID:        jobID,
		Filename:     filename,
		SourceBucket: bucket,
		SourceKey:    key,
		MediaType:    mediaType,
		Status:       domain.StatusUploaded,
	}

	if err := t.store.CreateUploaded(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to register upload: %w", err)
	}

	t.logger.Info("Upload registered",
		slog.String("job_id", jobID),
		slog.String("key", key),
		slog.String("media_type", string(mediaType)),
	)

	return job, nil
}

// OnObjectStored handles a storage "object created" notification. It upserts
// the job record, marks it queued, and enqueues one work message. Duplicate
// deliveries for the same object are safe: an already processing or
// completed job is left untouched.
func (t *Trigger) OnObjectStored(ctx context.Context, bucket, key string) (string, error) {
	key = decodeEventKey(key)

	jobID, filename, ok := blobstore.ParseSourceKey(key)
	if !ok {
		return "", fmt.Errorf("%w: unrecognized source key %q", domain.ErrInvalidMessage, key)
	}

	job, err := t.store.Get(ctx, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		// Storage event arrived before (or without) metadata registration;
		// derive the record from the key itself.
		job, err = t.RegisterUpload(ctx, jobID, filename, bucket, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load job for stored object: %w", err)
	}

	switch job.Status {
	case domain.StatusProcessing, domain.StatusCompleted, domain.StatusError:
		// processing/completed: already in flight. error: the retry path
		// owns re-drives, a duplicate storage event must not start one.
		t.logger.Info("Object stored event ignored",
			slog.String("job_id", jobID),
			slog.String("status", string(job.Status)),
		)
		return jobID, nil
	case domain.StatusUploaded:
		if err := t.store.MarkQueued(ctx, jobID); err != nil {
			if !errors.Is(err, domain.ErrClaimConflict) {
				return "", fmt.Errorf("failed to mark job queued: %w", err)
			}
			// Lost the race against a duplicate event; the winner owns the
			// enqueue.
			return jobID, nil
		}
	}

	if err := t.publish(ctx, job); err != nil {
		// Leave the record visible as uploaded so the failure is not
		// mistaken for a job waiting on a message that never existed. A
		// conflict means the job already moved on; nothing to undo then.
		if revertErr := t.store.RevertQueued(ctx, jobID); revertErr != nil && !errors.Is(revertErr, domain.ErrClaimConflict) {
			t.logger.Error("Failed to revert job after enqueue failure",
				slog.String("job_id", jobID),
				slog.Any("error", revertErr),
			)
		}
		return "", fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}

	t.logger.Info("Job queued for processing",
		slog.String("job_id", jobID),
		slog.String("key", key),
	)

	return jobID, nil
}

// decodeEventKey undoes the URL encoding storage notifications apply to
// object keys: percent escapes plus '+' for space. A key that does not
// decode cleanly is kept as delivered.
func decodeEventKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}

func (t *Trigger) publish(ctx context.Context, job *domain.Job) error {
	msg := domain.WorkMessage{
		JobID:        job.JobID,
		SourceBucket: job.SourceBucket,
		SourceKey:    job.SourceKey,
		EnqueuedAt:   time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal work message: %w", err)
	}

	return t.publisher.PublishWithRetry(ctx, body, "application/json")
}

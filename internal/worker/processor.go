package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trannm/mediascribe/internal/blobstore"
	"github.com/trannm/mediascribe/internal/domain"
)

// Outcome tells the worker loop what to do with the queue delivery once
// processing has finished.
type Outcome int

const (
	// OutcomeCompleted means the job finished and its results are stored.
	OutcomeCompleted Outcome = iota
	// OutcomeSkipped means another worker owns the job or it is already
	// done. The message carries no work and is dropped.
	OutcomeSkipped
	// OutcomeTransient means processing failed in a way a later attempt
	// may survive. The message goes back to the queue.
	OutcomeTransient
	// OutcomePermanent means retrying the same input cannot help. The job
	// stays in error and the message is dropped.
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeTransient:
		return "transient_failure"
	case OutcomePermanent:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// JobStore is the slice of the job store the processor needs
type JobStore interface {
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	Claim(ctx context.Context, jobID string) (*domain.Job, error)
	Complete(ctx context.Context, jobID, transcriptKey, summary string) error
	MarkError(ctx context.Context, jobID, detail string) error
}

// MediaStore reads source media and writes transcripts
type MediaStore interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Transcriber turns media bytes into text
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, media []byte) (string, error)
}

// Summarizer turns a transcript into a summary
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Processor runs one job end to end: claim, download, transcribe,
// summarize, store results. It owns the status transitions; the worker
// loop owns the queue acknowledgement.
type Processor struct {
	store       JobStore
	media       MediaStore
	transcriber Transcriber
	summarizer  Summarizer
	jobTimeout  time.Duration
	logger      *slog.Logger
}

// NewProcessor creates a new Processor
func NewProcessor(store JobStore, media MediaStore, transcriber Transcriber, summarizer Summarizer, jobTimeout time.Duration, logger *slog.Logger) *Processor {
	return &Processor{
		store:       store,
		media:       media,
		transcriber: transcriber,
		summarizer:  summarizer,
		jobTimeout:  jobTimeout,
		logger:      logger,
	}
}

// Process executes the pipeline for one work message. The returned error
// carries detail for logging; the Outcome alone decides the ack.
func (p *Processor) Process(ctx context.Context, msg *domain.WorkMessage) (Outcome, error) {
	job, err := p.store.Get(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return OutcomePermanent, fmt.Errorf("job %s not found: %w", msg.JobID, err)
		}
		return OutcomeTransient, fmt.Errorf("failed to load job %s: %w", msg.JobID, err)
	}

	// A redelivered message for a finished job carries no work.
	if job.Status == domain.StatusCompleted {
		p.logger.Info("Job already completed, dropping message",
			slog.String("job_id", job.JobID),
		)
		return OutcomeSkipped, nil
	}

	job, err = p.store.Claim(ctx, job.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrClaimConflict) {
			// Another worker holds the job, or its state moved on since the
			// message was published. Their run owns the result.
			p.logger.Warn("Job claim lost, dropping message",
				slog.String("job_id", msg.JobID),
			)
			return OutcomeSkipped, nil
		}
		return OutcomeTransient, fmt.Errorf("failed to claim job %s: %w", msg.JobID, err)
	}

	p.logger.Info("Job claimed for processing",
		slog.String("job_id", job.JobID),
		slog.Int("attempt", job.AttemptCount),
		slog.String("media_type", string(job.MediaType)),
	)

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	transcriptKey, summary, err := p.run(jobCtx, job)
	if err != nil {
		// Record the failure on the parent context so a job timeout does
		// not also kill the status update.
		if markErr := p.store.MarkError(ctx, job.JobID, err.Error()); markErr != nil {
			p.logger.Error("Failed to record job error",
				slog.String("job_id", job.JobID),
				slog.Any("error", markErr),
			)
		}

		if domain.IsTransient(err) {
			return OutcomeTransient, fmt.Errorf("job %s failed (attempt %d): %w", job.JobID, job.AttemptCount, err)
		}
		return OutcomePermanent, fmt.Errorf("job %s failed permanently: %w", job.JobID, err)
	}

	if err := p.store.Complete(ctx, job.JobID, transcriptKey, summary); err != nil {
		if errors.Is(err, domain.ErrClaimConflict) {
			// The job moved out of processing under us. The transcript is
			// durable in object storage either way.
			p.logger.Warn("Job state changed before completion could be recorded",
				slog.String("job_id", job.JobID),
			)
			return OutcomeSkipped, nil
		}
		return OutcomeTransient, fmt.Errorf("failed to record completion of job %s: %w", job.JobID, err)
	}

	p.logger.Info("Job completed",
		slog.String("job_id", job.JobID),
		slog.String("transcript_key", transcriptKey),
	)

	return OutcomeCompleted, nil
}

// run does the media work for a claimed job and returns the transcript
// key and summary text.
func (p *Processor) run(ctx context.Context, job *domain.Job) (string, string, error) {
	media, err := p.media.Download(ctx, job.SourceBucket, job.SourceKey)
	if err != nil {
		// Object storage hiccups are worth retrying.
		return "", "", domain.NewTransientError(fmt.Errorf("failed to download media: %w", err))
	}

	transcript, err := p.transcriber.Transcribe(ctx, job.Filename, media)
	if err != nil {
		return "", "", fmt.Errorf("transcription failed: %w", err)
	}

	summary, err := p.summarizer.Summarize(ctx, transcript)
	if err != nil {
		return "", "", fmt.Errorf("summarization failed: %w", err)
	}

	transcriptKey := blobstore.TranscriptKey(job.JobID)
	if err := p.media.Upload(ctx, transcriptKey, []byte(transcript), "text/plain; charset=utf-8"); err != nil {
		return "", "", domain.NewTransientError(fmt.Errorf("failed to store transcript: %w", err))
	}

	return transcriptKey, summary, nil
}

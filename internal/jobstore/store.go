package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/trannm/mediascribe/internal/domain"
)

// Store handles all job table mutations. Every status change is a
// conditional update guarded on the current status, so concurrent writers
// can race safely: at most one conditional update wins, the rest observe
// domain.ErrClaimConflict.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

const jobColumns = `
	job_id, filename, source_bucket, source_key, media_type, status,
	attempt_count, transcript_key, summary, error_detail, created_at, updated_at
`

// Get retrieves a job by its ID
func (s *Store) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// CreateUploaded inserts a fresh job record in the uploaded state. The
// insert is keyed on job_id and ignores duplicates, so registering the same
// object twice creates exactly one record.
func (s *Store) CreateUploaded(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, filename, source_bucket, source_key, media_type, status,
			attempt_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, NOW(), NOW())
		ON CONFLICT (job_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		job.JobID,
		job.Filename,
		job.SourceBucket,
		job.SourceKey,
		job.MediaType,
		domain.StatusUploaded,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// transition performs a conditional status update: it only succeeds when the
// job currently holds one of the expected statuses and the edge is legal.
// Returns domain.ErrClaimConflict when another writer got there first.
func (s *Store) transition(ctx context.Context, jobID string, from []domain.Status, to domain.Status, extraSet string, extraArgs ...interface{}) error {
	for _, f := range from {
		if !domain.CanTransition(f, to) {
			return fmt.Errorf("illegal status transition %s -> %s", f, to)
		}
	}

	fromStrs := make([]string, len(from))
	for i, f := range from {
		fromStrs[i] = string(f)
	}

	query := `
		UPDATE jobs
		SET status = $1, updated_at = NOW()` + extraSet + `
		WHERE job_id = $2 AND status = ANY($3)
	`

	args := append([]interface{}{to, jobID, pq.Array(fromStrs)}, extraArgs...)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrClaimConflict
	}

	s.logger.Debug("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", string(to)),
	)

	return nil
}

// MarkQueued transitions uploaded -> queued ahead of enqueue
func (s *Store) MarkQueued(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, []domain.Status{domain.StatusUploaded}, domain.StatusQueued, "")
}

// RevertQueued undoes MarkQueued when the enqueue could not be completed,
// leaving the job visible as merely uploaded. Returns
// domain.ErrClaimConflict when the job is no longer queued.
func (s *Store) RevertQueued(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, []domain.Status{domain.StatusQueued}, domain.StatusUploaded, "")
}

// Claim attempts to take ownership of a job for processing. Only a queued
// or error job can be claimed; the attempt counter moves with the claim so
// the retry budget is tracked independently of queue delivery counts.
// Returns the claimed job, or domain.ErrClaimConflict if another worker won.
func (s *Store) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    attempt_count = attempt_count + 1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = ANY($3)
		RETURNING ` + jobColumns

	claimable := pq.Array([]string{
		string(domain.StatusQueued),
		string(domain.StatusError),
	})

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, domain.StatusProcessing, jobID, claimable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not claimable",
				slog.String("job_id", jobID),
			)
			return nil, domain.ErrClaimConflict
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.Int("attempt", job.AttemptCount),
	)

	return &job, nil
}

// Complete transitions processing -> completed and records the result refs.
// Guarded on processing so a stale worker cannot overwrite a re-driven run.
func (s *Store) Complete(ctx context.Context, jobID, transcriptKey, summary string) error {
	return s.transition(ctx, jobID,
		[]domain.Status{domain.StatusProcessing},
		domain.StatusCompleted,
		", transcript_key = $4, summary = $5, error_detail = ''",
		transcriptKey, summary,
	)
}

// MarkError transitions processing -> error with a human-readable cause
func (s *Store) MarkError(ctx context.Context, jobID, detail string) error {
	return s.transition(ctx, jobID,
		[]domain.Status{domain.StatusProcessing},
		domain.StatusError,
		", error_detail = $4",
		detail,
	)
}

// Requeue re-drives a failed job: error -> queued, only while the attempt
// count is still inside the retry budget. Returns domain.ErrClaimConflict
// when the job is no longer in error or the budget is spent.
func (s *Store) Requeue(ctx context.Context, jobID string, maxRetries int) error {
	query := `
		UPDATE jobs
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status = $3 AND attempt_count < $4
	`

	result, err := s.db.ExecContext(ctx, query, domain.StatusQueued, jobID, domain.StatusError, maxRetries)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrClaimConflict
	}

	s.logger.Info("Job requeued for retry",
		slog.String("job_id", jobID),
	)

	return nil
}

// ListStuckQueued returns jobs that have sat in queued longer than the
// threshold. A crash between the store write and the enqueue leaves such
// orphans; the dlq-monitor re-publishes messages for them.
func (s *Store) ListStuckQueued(ctx context.Context, threshold time.Duration, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND updated_at < NOW() - $2::interval
		ORDER BY updated_at ASC
		LIMIT $3
	`

	interval := fmt.Sprintf("%f seconds", threshold.Seconds())

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query, domain.StatusQueued, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck jobs: %w", err)
	}

	return jobs, nil
}

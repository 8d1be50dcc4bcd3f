// Package dlqmonitor sweeps the dead-letter queue and re-drives failed
// jobs that still have retry budget left.
package dlqmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trannm/mediascribe/internal/domain"
)

// JobStore is the slice of the job store the monitor needs
type JobStore interface {
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	Requeue(ctx context.Context, jobID string, maxRetries int) error
	ListStuckQueued(ctx context.Context, threshold time.Duration, limit int) ([]domain.Job, error)
}

// Queue is the broker surface the monitor uses: pull from the dead-letter
// queue, push fresh messages to the work queue.
type Queue interface {
	GetFromDeadLetter() (amqp.Delivery, bool, error)
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Config holds monitor configuration
type Config struct {
	SweepBatch     int
	StuckThreshold time.Duration
	StuckBatch     int
	MaxRetries     int
}

// Monitor re-drives dead-lettered jobs and repairs queued jobs whose
// message was lost.
type Monitor struct {
	store  JobStore
	queue  Queue
	config *Config
	logger *slog.Logger
}

// NewMonitor creates a new Monitor
func NewMonitor(store JobStore, queue Queue, config *Config, logger *slog.Logger) *Monitor {
	return &Monitor{
		store:  store,
		queue:  queue,
		config: config,
		logger: logger,
	}
}

// Sweep drains up to SweepBatch messages from the dead-letter queue. Jobs
// with retry budget left go back to the work queue with a fresh message;
// exhausted jobs stay in error and their message is consumed. Every
// dead-letter message is settled exactly once per sweep.
func (m *Monitor) Sweep(ctx context.Context) error {
	swept := 0
	for swept < m.config.SweepBatch {
		if err := ctx.Err(); err != nil {
			return err
		}

		delivery, ok, err := m.queue.GetFromDeadLetter()
		if err != nil {
			return fmt.Errorf("failed to read dead-letter queue: %w", err)
		}
		if !ok {
			break
		}
		swept++

		m.handleDeadLetter(ctx, delivery)
	}

	if swept > 0 {
		m.logger.Info("Dead-letter sweep finished",
			slog.Int("messages", swept),
		)
	}

	return nil
}

// handleDeadLetter decides the fate of one dead-lettered message
func (m *Monitor) handleDeadLetter(ctx context.Context, delivery amqp.Delivery) {
	var msg domain.WorkMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil || msg.JobID == "" {
		// Nothing to re-drive without a job id.
		m.logger.Error("Discarding malformed dead-letter message",
			slog.String("body", string(delivery.Body)),
		)
		m.ack(delivery, "")
		return
	}

	job, err := m.store.Get(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			m.logger.Error("Dead-letter message refers to unknown job",
				slog.String("job_id", msg.JobID),
			)
			m.ack(delivery, msg.JobID)
			return
		}
		// Leave the message for the next sweep.
		m.logger.Error("Failed to load job for dead-letter message",
			slog.String("job_id", msg.JobID),
			slog.Any("error", err),
		)
		m.nackRequeue(delivery, msg.JobID)
		return
	}

	if job.Status == domain.StatusCompleted {
		m.logger.Info("Dead-letter message for completed job, discarding",
			slog.String("job_id", job.JobID),
		)
		m.ack(delivery, job.JobID)
		return
	}

	if job.AttemptCount >= m.config.MaxRetries {
		m.logger.Warn("Job abandoned after exhausting retries",
			slog.String("job_id", job.JobID),
			slog.Int("attempt_count", job.AttemptCount),
			slog.String("error_detail", job.ErrorDetail),
		)
		m.ack(delivery, job.JobID)
		return
	}

	if err := m.redrive(ctx, job); err != nil {
		m.logger.Error("Failed to re-drive job",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		m.nackRequeue(delivery, job.JobID)
		return
	}

	m.logger.Info("Job re-driven from dead-letter queue",
		slog.String("job_id", job.JobID),
		slog.Int("attempt_count", job.AttemptCount),
	)
	m.ack(delivery, job.JobID)
}

// redrive moves an error job back to queued and publishes a fresh work
// message for it.
func (m *Monitor) redrive(ctx context.Context, job *domain.Job) error {
	if err := m.store.Requeue(ctx, job.JobID, m.config.MaxRetries); err != nil {
		if errors.Is(err, domain.ErrClaimConflict) {
			// The job moved on since the message was dead-lettered: a
			// worker holds it again, or the budget ran out meanwhile.
			m.logger.Info("Job no longer eligible for re-drive",
				slog.String("job_id", job.JobID),
			)
			return nil
		}
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	return m.publish(ctx, job)
}

// SweepStuck finds jobs that have sat in queued past the threshold and
// publishes a fresh message for each. A crash between the status write
// and the enqueue leaves such jobs behind; this pass repairs them. The
// worker's claim keeps a duplicate message harmless.
func (m *Monitor) SweepStuck(ctx context.Context) error {
	jobs, err := m.store.ListStuckQueued(ctx, m.config.StuckThreshold, m.config.StuckBatch)
	if err != nil {
		return fmt.Errorf("failed to list stuck jobs: %w", err)
	}

	for i := range jobs {
		job := &jobs[i]
		if err := m.publish(ctx, job); err != nil {
			m.logger.Error("Failed to republish message for stuck job",
				slog.String("job_id", job.JobID),
				slog.Any("error", err),
			)
			continue
		}
		m.logger.Info("Republished message for stuck job",
			slog.String("job_id", job.JobID),
			slog.Time("updated_at", job.UpdatedAt),
		)
	}

	return nil
}

func (m *Monitor) publish(ctx context.Context, job *domain.Job) error {
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

	return m.queue.PublishWithRetry(ctx, body, "application/json")
}

func (m *Monitor) ack(delivery amqp.Delivery, jobID string) {
	if err := delivery.Ack(false); err != nil {
		m.logger.Error("Failed to ACK dead-letter message",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
}

func (m *Monitor) nackRequeue(delivery amqp.Delivery, jobID string) {
	if err := delivery.Nack(false, true); err != nil {
		m.logger.Error("Failed to NACK dead-letter message",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
}

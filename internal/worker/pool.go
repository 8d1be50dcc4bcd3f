package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine. It
// maps processing outcomes onto queue acknowledgements: completed and
// skipped jobs (and permanent failures) drop the message, transient
// failures put it back for redelivery. The queue's delivery limit
// dead-letters messages that keep failing.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case task, ok := <-w.jobsChan:
			if !ok {
				return
			}

			outcome, err := w.processor.Process(ctx, task.msg)
			if err != nil {
				w.logger.Error("Job processing did not complete",
					slog.String("worker_name", workerName),
					slog.String("job_id", task.msg.JobID),
					slog.String("outcome", outcome.String()),
					slog.Any("error", err),
				)
			}

			w.acknowledge(task, outcome, workerName)
		}
	}
}

// acknowledge settles the queue delivery according to the outcome
func (w *Worker) acknowledge(task *jobTask, outcome Outcome, workerName string) {
	var err error
	switch outcome {
	case OutcomeTransient:
		err = task.delivery.Nack(false, true)
	default:
		// Completed, skipped, and permanent failures all consume the
		// message; redelivering it cannot change the result.
		err = task.delivery.Ack(false)
	}

	if err != nil {
		w.logger.Error("Failed to settle queue delivery",
			slog.String("worker_name", workerName),
			slog.String("job_id", task.msg.JobID),
			slog.String("outcome", outcome.String()),
			slog.Any("error", err),
		)
		return
	}

	w.logger.Info("Queue delivery settled",
		slog.String("worker_name", workerName),
		slog.String("job_id", task.msg.JobID),
		slog.String("outcome", outcome.String()),
	)
}

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redbtn-io/runstream/backoff"
	"github.com/redbtn-io/runstream/queue"
)

// Executor runs a single claimed job through its registered handler, then
// finalizes the job: completed on success, requeued with backoff while
// attempts remain, failed once they are exhausted.
type Executor struct {
	registry *Registry
	store    queue.Store
	backoff  backoff.Strategy
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(registry *Registry, store queue.Store, bo backoff.Strategy, logger *slog.Logger) *Executor {
	if bo == nil {
		bo = backoff.DefaultStrategy()
	}
	return &Executor{registry: registry, store: store, backoff: bo, logger: logger}
}

// Execute runs a job and persists its outcome.
func (e *Executor) Execute(ctx context.Context, j *queue.Job) error {
	handler, ok := e.registry.Get(j.Type)
	if !ok {
		err := fmt.Errorf("worker: no handler registered for job type %q", j.Type)
		e.finalizeFailure(ctx, j, err)
		return err
	}

	err := handler(ctx, j, j.Payload)
	now := time.Now().UTC()

	if err == nil {
		j.State = queue.StateCompleted
		j.CompletedAt = &now
		j.Progress = 1
		if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
			e.logger.Error("failed to finalize completed job",
				slog.String("job_id", j.ID),
				slog.String("error", updateErr.Error()),
			)
			return updateErr
		}
		return nil
	}

	j.LastError = err.Error()

	if j.Attempts < j.MaxAttempts {
		delay := e.backoff.Delay(j.Attempts)
		j.State = queue.StateDelayed
		j.RunAt = now.Add(delay)
		if requeueErr := e.store.RequeueJob(ctx, j); requeueErr != nil {
			e.logger.Error("failed to requeue job for retry",
				slog.String("job_id", j.ID),
				slog.String("error", requeueErr.Error()),
			)
			return requeueErr
		}
		e.logger.Debug("job scheduled for retry",
			slog.String("job_id", j.ID),
			slog.Int("attempt", j.Attempts),
			slog.Duration("delay", delay),
		)
		return err
	}

	e.finalizeFailure(ctx, j, err)
	return err
}

func (e *Executor) finalizeFailure(ctx context.Context, j *queue.Job, cause error) {
	now := time.Now().UTC()
	j.State = queue.StateFailed
	j.LastError = cause.Error()
	j.CompletedAt = &now
	if err := e.store.UpdateJob(ctx, j); err != nil {
		e.logger.Error("failed to finalize failed job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Submitter enqueues durable units of work into the priority work queue.
// It is independent of the streaming path: a submitted job is consumed
// exactly once by a worker, while run progress flows through the run store.
type Submitter struct {
	store  Store
	logger *slog.Logger
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithLogger sets the structured logger for the submitter.
func WithLogger(l *slog.Logger) SubmitterOption {
	return func(s *Submitter) { s.logger = l }
}

// NewSubmitter creates a Submitter backed by the given queue store.
func NewSubmitter(store Store, opts ...SubmitterOption) *Submitter {
	s := &Submitter{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitGraph enqueues a graph run. The job ID is the run ID, so a second
// submission for the same run fails with runstream.ErrJobAlreadyExists
// rather than replacing the first.
func (s *Submitter) SubmitGraph(ctx context.Context, p GraphPayload, opts ...Option) (string, error) {
	if p.RunID == "" {
		return "", fmt.Errorf("queue: submit graph: missing run id")
	}
	return s.submit(ctx, TypeGraph, p.RunID, p, applyOptions(opts))
}

// SubmitAutomation enqueues an automation run keyed by its run ID.
func (s *Submitter) SubmitAutomation(ctx context.Context, p AutomationPayload, opts ...Option) (string, error) {
	if p.RunID == "" {
		return "", fmt.Errorf("queue: submit automation: missing run id")
	}
	return s.submit(ctx, TypeAutomation, p.RunID, p, applyOptions(opts))
}

// SubmitBackground enqueues a background task. Background jobs have no run
// ID; each submission gets a fresh job ID. This is the only job type that
// honors the delay option.
func (s *Submitter) SubmitBackground(ctx context.Context, p BackgroundPayload, opts ...Option) (string, error) {
	if p.Task == "" {
		return "", fmt.Errorf("queue: submit background: missing task type")
	}
	jobID := "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	o := applyOptions(opts)
	return s.submitWithDelay(ctx, TypeBackground, jobID, p, o, o.Delay)
}

// GetStatus returns the queue-layer status of a job.
func (s *Submitter) GetStatus(ctx context.Context, queue, jobID string) (*Status, error) {
	j, err := s.store.GetJob(ctx, queue, jobID)
	if err != nil {
		return nil, err
	}
	return &Status{
		State:    j.State,
		Progress: j.Progress,
		Result:   j.Result,
		Error:    j.LastError,
	}, nil
}

// Cancel cancels a job that is still waiting or delayed. It returns false
// when the job has already been picked up or finished; stopping an
// in-flight run goes through the run manager's pre-start cancel and the
// worker's own cooperative check instead.
func (s *Submitter) Cancel(ctx context.Context, queue, jobID string) (bool, error) {
	return s.store.CancelJob(ctx, queue, jobID)
}

func (s *Submitter) submit(ctx context.Context, t Type, jobID string, payload any, o Options) (string, error) {
	return s.submitWithDelay(ctx, t, jobID, payload, o, 0)
}

func (s *Submitter) submitWithDelay(ctx context.Context, t Type, jobID string, payload any, o Options, delay time.Duration) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: marshal %s payload: %w", t, err)
	}

	q := o.Queue
	if q == "" {
		q = DefaultQueue(t)
	}

	now := time.Now().UTC()
	j := &Job{
		ID:            jobID,
		Type:          t,
		Queue:         q,
		Payload:       data,
		State:         StateWaiting,
		Priority:      o.Priority,
		RunAt:         now,
		MaxAttempts:   o.MaxAttempts,
		KeepCompleted: o.KeepCompleted,
		KeepFailed:    o.KeepFailed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if delay > 0 {
		j.State = StateDelayed
		j.RunAt = now.Add(delay)
	}

	if err := s.store.EnqueueJob(ctx, j); err != nil {
		return "", fmt.Errorf("queue: enqueue %s job %s: %w", t, jobID, err)
	}

	s.logger.Debug("job submitted",
		slog.String("job_id", jobID),
		slog.String("type", string(t)),
		slog.String("queue", q),
		slog.Int("priority", o.Priority),
	)
	return jobID, nil
}

func applyOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

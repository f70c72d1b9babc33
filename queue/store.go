package queue

import "context"

// Store defines the persistence contract for the job queue.
type Store interface {
	// EnqueueJob persists a new job and makes it eligible for dequeue at
	// its run-at time. Fails with runstream.ErrJobAlreadyExists if a job
	// with the same ID exists; this is the dedup boundary.
	EnqueueJob(ctx context.Context, j *Job) error

	// DequeueJobs atomically claims up to limit due jobs from the given
	// queues in priority order, marks them active, and returns them.
	DequeueJobs(ctx context.Context, queues []string, limit int) ([]*Job, error)

	// GetJob retrieves a job by queue and ID.
	// Returns runstream.ErrJobNotFound if no job exists.
	GetJob(ctx context.Context, queue, jobID string) (*Job, error)

	// UpdateJob persists changes to an existing job. Final states get
	// the job's retention TTL applied.
	UpdateJob(ctx context.Context, j *Job) error

	// RequeueJob puts a previously claimed job back in its queue, e.g.
	// for a retry at a later run-at time.
	RequeueJob(ctx context.Context, j *Job) error

	// CancelJob cancels a job that has not been picked up yet. Returns
	// false without error if the job is already active or finished;
	// the same no-op contract as pre-start run cancellation, one layer
	// down.
	CancelJob(ctx context.Context, queue, jobID string) (bool, error)
}

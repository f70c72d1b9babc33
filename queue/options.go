package queue

import "time"

// Options configures per-job behavior such as priority, delay, and retention.
type Options struct {
	// Queue overrides the default queue for the job's type.
	Queue string

	// Priority determines dequeue ordering. Lower values are served first.
	Priority int

	// Delay defers the job's earliest pickup time. Only honored for
	// background jobs.
	Delay time.Duration

	// MaxAttempts is the number of executions before the job is marked
	// failed.
	MaxAttempts int

	// KeepCompleted is how long a completed job is retained for
	// observability.
	KeepCompleted time.Duration

	// KeepFailed is how long a failed job is retained for manual
	// inspection.
	KeepFailed time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Priority:      0,
		MaxAttempts:   1,
		KeepCompleted: time.Hour,
		KeepFailed:    24 * time.Hour,
	}
}

// Option is a functional option for job submission.
type Option func(*Options)

// WithQueue routes the job to a specific queue.
func WithQueue(q string) Option {
	return func(o *Options) { o.Queue = q }
}

// WithPriority sets the job priority. Lower values are served first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithDelay defers the job's earliest pickup time.
func WithDelay(d time.Duration) Option {
	return func(o *Options) { o.Delay = d }
}

// WithMaxAttempts sets how many executions are allowed before failure.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithRetention sets how long completed and failed jobs are retained.
func WithRetention(completed, failed time.Duration) Option {
	return func(o *Options) {
		o.KeepCompleted = completed
		o.KeepFailed = failed
	}
}

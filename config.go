package runstream

import "time"

// Config holds configuration for the Service.
type Config struct {
	// StateTTL is how long run state and event logs are retained.
	// The event log's TTL is re-armed on every append so an active
	// run's history never expires mid-run.
	StateTTL time.Duration

	// Concurrency is the maximum number of jobs processed concurrently
	// by the worker pool.
	Concurrency int

	// Queues is the list of queues the worker pool will poll.
	Queues []string

	// PollInterval is how often workers poll for new jobs.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// KeepCompleted is how long finished jobs are retained for inspection.
	KeepCompleted time.Duration

	// KeepFailed is how long failed jobs are retained. Failed jobs are
	// kept longer than completed ones to allow manual inspection.
	KeepFailed time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StateTTL:        time.Hour,
		Concurrency:     10,
		Queues:          []string{"graphs", "automations", "background"},
		PollInterval:    time.Second,
		ShutdownTimeout: 30 * time.Second,
		KeepCompleted:   time.Hour,
		KeepFailed:      24 * time.Hour,
	}
}

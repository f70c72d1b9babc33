// Package backoff computes the delay between retry attempts of a failed
// job. The executor asks a [Strategy] for a delay after each failed
// attempt and schedules the job's next run-at accordingly. Strategies are
// stateless and safe for concurrent use across the worker pool.
package backoff

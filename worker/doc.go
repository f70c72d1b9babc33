// Package worker provides the queue consumer side: an Executor that
// invokes registered handlers and owns the job's final state, and a Pool
// of goroutines polling the queues. The computation behind a handler (the
// graph engine) is opaque here; it reports run progress through the run
// store, never through this package.
package worker

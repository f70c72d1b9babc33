// Package queue defines the durable job model and the [Submitter] that
// enqueues graph, automation, and background work into named priority
// queues. A job's ID is the run ID it carries, so duplicate submission for
// the same run is deduplicated by the store. Job lifecycle (waiting →
// active → completed/failed) is owned by this layer and is independent of
// run state, which remains the durable source of truth for run progress.
package queue

// Package run defines the run-state record, the event model, and the
// persistence contracts for the run subsystem: durable state, an
// append-only event log, and lossy pub/sub fan-out. The [Manager] composes
// the three contracts into the operations request handlers and workers use.
//
// The run state record has a single writer: the worker executing the run,
// or the cancellation path before the worker starts. Stream readers never
// perform read-modify-write; they only read state and follow the event log.
package run

// Package store defines the aggregate persistence interface. Each subsystem
// (run state, event log, pub/sub, job queue) defines its own store
// interface; the composite [Store] composes them all. A single backend need
// only implement Store to satisfy every subsystem's persistence contract.
//
// # Available Backends
//
//   - store/redis: JSON values with native TTL, lists for the event log,
//     native pub/sub for fan-out, sorted sets for queues
//   - store/memory: in-memory store for development and testing
package store

import (
	"context"

	"github.com/redbtn-io/runstream/queue"
	"github.com/redbtn-io/runstream/run"
)

// Store is the aggregate persistence interface.
type Store interface {
	run.StateStore
	run.EventLog
	run.PubSub
	queue.Store

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases resources owned by the store. Backends whose
	// client is injected by the caller treat this as a no-op.
	Close() error
}

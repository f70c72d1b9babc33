package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redbtn-io/runstream/queue"
)

// HandlerFunc is a type-erased job handler that accepts the raw JSON
// payload. Typed definitions are converted to HandlerFuncs at registration
// time by closing over JSON unmarshal + the typed handler.
type HandlerFunc func(ctx context.Context, j *queue.Job, payload []byte) error

// Definition is a typed handler for one job type. T is the payload type:
// queue.GraphPayload, queue.AutomationPayload, queue.BackgroundPayload, or
// any JSON-serializable type for custom queues.
type Definition[T any] struct {
	// Type is the job type this handler processes.
	Type queue.Type

	// Handler executes the job. The graph engine behind a graph handler
	// is opaque to this package; it emits run events through the run
	// manager, not through the pool.
	Handler func(ctx context.Context, j *queue.Job, payload T) error
}

// NewDefinition creates a typed handler definition.
func NewDefinition[T any](t queue.Type, handler func(ctx context.Context, j *queue.Job, payload T) error) *Definition[T] {
	return &Definition[T]{Type: t, Handler: handler}
}

// Registry maps job types to type-erased handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[queue.Type]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[queue.Type]HandlerFunc)}
}

// Register registers a typed definition. The generic handler is wrapped in
// a closure that unmarshals the payload into T before calling it.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Register[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, j *queue.Job, payload []byte) error {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return fmt.Errorf("worker: unmarshal %s payload: %w", def.Type, err)
			}
		}
		return def.Handler(ctx, j, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Type] = handler
}

// Get returns the handler for the given job type.
func (r *Registry) Get(t queue.Type) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns all registered job types.
func (r *Registry) Types() []queue.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]queue.Type, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

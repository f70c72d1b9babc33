package run

import "context"

// StateStore defines the persistence contract for run state records and the
// conversation → active-run index. Both carry the store's fixed TTL.
type StateStore interface {
	// CreateState writes a new state record with TTL. It fails with
	// runstream.ErrRunAlreadyExists if a record already exists for the
	// run ID; callers must generate fresh IDs.
	CreateState(ctx context.Context, state *State) error

	// UpdateState overwrites the whole state record and re-arms its TTL.
	// Only the single writer (the worker, or the pre-start cancellation
	// path) may call this.
	UpdateState(ctx context.Context, state *State) error

	// GetState retrieves the state record for a run.
	// Returns runstream.ErrRunNotFound if no record exists.
	GetState(ctx context.Context, runID string) (*State, error)

	// SetConversationRun indexes the run as the active run for a
	// conversation, with the same TTL as the state record.
	SetConversationRun(ctx context.Context, conversationID, runID string) error

	// ConversationRun returns the active run ID for a conversation.
	// Returns runstream.ErrNoActiveRun if none is indexed.
	ConversationRun(ctx context.Context, conversationID string) (string, error)
}

// EventLog defines the persistence contract for the per-run ordered event
// log. Append is the only mutator; the log is never reordered or rewritten.
type EventLog interface {
	// AppendEvent adds an event to the tail of the run's log and re-arms
	// the log's TTL so an active run's history never expires mid-run.
	AppendEvent(ctx context.Context, runID string, evt *Event) error

	// Events returns the full ordered log for a run. A run with no
	// events yields an empty slice, not an error.
	Events(ctx context.Context, runID string) ([]*Event, error)

	// EventsFrom returns the ordered log starting at the given 0-based
	// index.
	EventsFrom(ctx context.Context, runID string, start int) ([]*Event, error)

	// EventCount returns the current length of the run's log.
	EventCount(ctx context.Context, runID string) (int, error)
}

// PubSub defines the fan-out broadcast contract for live events. Durability
// is the event log's job, not this one's: a message published while nobody
// is subscribed is simply lost to subscribers. Every subscription receives
// every message in publish order; there are no consumer groups.
type PubSub interface {
	// Publish broadcasts an event to all current subscribers of the run.
	Publish(ctx context.Context, runID string, evt *Event) error

	// Subscribe opens a subscription to the run's live event channel.
	// The caller owns the subscription and must Close it.
	Subscribe(ctx context.Context, runID string) (Subscription, error)
}

// Subscription is a handle to one live event feed. Close is idempotent.
type Subscription interface {
	// C returns the channel events arrive on. The channel is closed
	// when the subscription is closed.
	C() <-chan *Event

	// Close releases the subscription. Safe to call multiple times.
	Close()
}

// Store composes the three run persistence contracts. A single backend
// implements all of them.
type Store interface {
	StateStore
	EventLog
	PubSub
}

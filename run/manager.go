package run

import (
	"context"
	"fmt"
	"log/slog"
)

// InitParams carries the inputs to Manager.Initialize.
type InitParams struct {
	// RunID is the caller-supplied run identifier. Left empty, a fresh
	// one is generated.
	RunID string

	UserID    string
	GraphID   string
	GraphName string

	// ConversationID, when set, indexes this run as the conversation's
	// active run.
	ConversationID string

	// Input is stored on the state record and is immutable afterwards.
	Input map[string]any
}

// Manager provides the run lifecycle operations over a Store: initializing
// durable state before the worker starts, reading state and events, emitting
// events on the worker's behalf, and pre-start cancellation.
type Manager struct {
	store  Store
	logger *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the structured logger for the manager.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager backed by the given store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying run store.
func (m *Manager) Store() Store { return m.store }

// Initialize creates the durable state record for a new run, indexes it by
// conversation, and appends + broadcasts a synthetic run_queued event. The
// three writes are best-effort sequential: the state write must succeed, but
// a failed index write or broadcast does not fail the call; the queued
// event remains visible through the durable log, so a stream that misses
// the live broadcast still picks it up on first read.
func (m *Manager) Initialize(ctx context.Context, p InitParams) (*State, error) {
	runID := p.RunID
	if runID == "" {
		runID = NewID()
	}

	state := &State{
		RunID:          runID,
		UserID:         p.UserID,
		GraphID:        p.GraphID,
		GraphName:      p.GraphName,
		ConversationID: p.ConversationID,
		Status:         StatusQueued,
		StartedAt:      now(),
		Input:          p.Input,
		Output:         Output{Data: map[string]any{}},
		Graph:          Trace{ExecutionPath: []string{}, NodeProgress: map[string]NodeProgress{}},
	}

	if err := m.store.CreateState(ctx, state); err != nil {
		return nil, fmt.Errorf("run: initialize %s: %w", runID, err)
	}

	if p.ConversationID != "" {
		if err := m.store.SetConversationRun(ctx, p.ConversationID, runID); err != nil {
			m.logger.Warn("conversation index write failed",
				slog.String("run_id", runID),
				slog.String("conversation_id", p.ConversationID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := m.Emit(ctx, runID, NewEvent(EventRunQueued, runID)); err != nil {
		m.logger.Warn("queued event write failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}

	return state, nil
}

// Get retrieves the state record for a run.
func (m *Manager) Get(ctx context.Context, runID string) (*State, error) {
	return m.store.GetState(ctx, runID)
}

// Status returns the run's current status.
func (m *Manager) Status(ctx context.Context, runID string) (Status, error) {
	state, err := m.store.GetState(ctx, runID)
	if err != nil {
		return "", err
	}
	return state.Status, nil
}

// ActiveRun returns the run currently indexed for a conversation, letting
// the UI ask "is anything generating right now" without knowing the run ID.
func (m *Manager) ActiveRun(ctx context.Context, conversationID string) (string, error) {
	return m.store.ConversationRun(ctx, conversationID)
}

// Cancel transitions a run to cancelled only if it has not yet
// started: the current status must be queued or pending. It returns false
// without touching state when the run is already running or finished;
// cancelling an in-flight worker is the worker's job, not this component's.
func (m *Manager) Cancel(ctx context.Context, runID string) (bool, error) {
	state, err := m.store.GetState(ctx, runID)
	if err != nil {
		return false, err
	}
	if state.Status != StatusQueued && state.Status != StatusPending {
		return false, nil
	}

	state.Status = StatusCancelled
	state.CompletedAt = now()
	if err := m.store.UpdateState(ctx, state); err != nil {
		return false, fmt.Errorf("run: cancel %s: %w", runID, err)
	}
	if err := m.Emit(ctx, runID, NewEvent(EventRunCancelled, runID)); err != nil {
		m.logger.Warn("cancelled event write failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
	return true, nil
}

// Update overwrites the run's state record. Intended for the single writer
// performing read-modify-write of the whole record.
func (m *Manager) Update(ctx context.Context, state *State) error {
	return m.store.UpdateState(ctx, state)
}

// Emit appends an event to the durable log and then broadcasts it to live
// subscribers. The append must succeed; a failed broadcast is logged and
// swallowed because a stream that misses it recovers from the log.
func (m *Manager) Emit(ctx context.Context, runID string, evt *Event) error {
	if err := m.store.AppendEvent(ctx, runID, evt); err != nil {
		return fmt.Errorf("run: append event %s: %w", runID, err)
	}
	if err := m.store.Publish(ctx, runID, evt); err != nil {
		m.logger.Warn("event broadcast failed",
			slog.String("run_id", runID),
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Subscribe opens a live subscription to the run's event channel.
func (m *Manager) Subscribe(ctx context.Context, runID string) (Subscription, error) {
	return m.store.Subscribe(ctx, runID)
}

// Events returns the full ordered event log for a run.
func (m *Manager) Events(ctx context.Context, runID string) ([]*Event, error) {
	return m.store.Events(ctx, runID)
}

// EventsFrom returns the event log starting at the given index.
func (m *Manager) EventsFrom(ctx context.Context, runID string, start int) ([]*Event, error) {
	return m.store.EventsFrom(ctx, runID, start)
}

// EventCount returns the current length of the run's event log.
func (m *Manager) EventCount(ctx context.Context, runID string) (int, error) {
	return m.store.EventCount(ctx, runID)
}

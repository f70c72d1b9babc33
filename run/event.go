package run

// EventType identifies the kind of run event.
type EventType string

const (
	// Run lifecycle events.
	EventRunQueued    EventType = "run_queued"
	EventRunStart     EventType = "run_start"
	EventRunComplete  EventType = "run_complete"
	EventRunError     EventType = "run_error"
	EventRunCancelled EventType = "run_cancelled"

	// Node lifecycle events.
	EventNodeStart    EventType = "node_start"
	EventNodeProgress EventType = "node_progress"
	EventNodeComplete EventType = "node_complete"
	EventNodeError    EventType = "node_error"

	// Streaming output.
	EventChunk EventType = "chunk"

	// Tool lifecycle events.
	EventToolStart    EventType = "tool_start"
	EventToolProgress EventType = "tool_progress"
	EventToolComplete EventType = "tool_complete"
	EventToolError    EventType = "tool_error"

	// Synthetic stream-local events. Never appended to the log.
	EventInit  EventType = "init"
	EventError EventType = "error"
)

// Terminal reports whether the event type ends a run. After a terminal
// event no further events are appended to the log.
func (t EventType) Terminal() bool {
	switch t {
	case EventRunComplete, EventRunError, EventRunCancelled:
		return true
	}
	return false
}

// Event is a flat, independently-deserializable record of something that
// happened during a run. Every event carries at least Type and Timestamp
// (unix milliseconds); the remaining fields vary by type. Events are
// immutable once appended to the log, and their 0-based position in the
// log is their durable sequence number.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	RunID     string    `json:"runId,omitempty"`

	// Chunk fields.
	Content  string `json:"content,omitempty"`
	Thinking bool   `json:"thinking,omitempty"`

	// Node fields.
	NodeID   string  `json:"nodeId,omitempty"`
	NodeName string  `json:"nodeName,omitempty"`
	Progress float64 `json:"progress,omitempty"`

	// Tool fields.
	ToolName string `json:"toolName,omitempty"`
	ToolID   string `json:"toolId,omitempty"`

	// Error carries worker-reported failures. A run_error event is data,
	// not a protocol error; it flows through the same channel as success.
	Error string `json:"error,omitempty"`

	// Data holds type-specific structured payload.
	Data map[string]any `json:"data,omitempty"`

	// Init-only fields: a snapshot of the run state plus convenience
	// mirrors of output.content / output.thinking so a client can render
	// immediately, even when it reconnects after completion.
	State            *State `json:"state,omitempty"`
	ExistingContent  string `json:"existingContent,omitempty"`
	ExistingThinking string `json:"existingThinking,omitempty"`
}

// NewEvent creates an event of the given type stamped with the current time.
func NewEvent(t EventType, runID string) *Event {
	return &Event{Type: t, Timestamp: now(), RunID: runID}
}

// NewChunk creates a chunk event carrying a piece of streamed output.
func NewChunk(runID, content string, thinking bool) *Event {
	e := NewEvent(EventChunk, runID)
	e.Content = content
	e.Thinking = thinking
	return e
}

// NewInit creates the synthetic init snapshot emitted at the head of every
// stream connection. The state may be nil when a client connects before
// the run record exists (a cold-start race, not an error).
func NewInit(state *State) *Event {
	e := &Event{Type: EventInit, Timestamp: now()}
	if state != nil {
		e.RunID = state.RunID
		e.State = state
		e.ExistingContent = state.Output.Content
		e.ExistingThinking = state.Output.Thinking
	}
	return e
}

// NewStreamError creates the synthetic error event surfaced to a connected
// client when a store or broker operation fails transiently.
func NewStreamError(runID, msg string) *Event {
	e := NewEvent(EventError, runID)
	e.Error = msg
	return e
}

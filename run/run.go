package run

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a run.
type Status string

const (
	// StatusQueued means the run is initialized but not yet picked up.
	StatusQueued Status = "queued"
	// StatusPending means the run is waiting on a precondition before start.
	StatusPending Status = "pending"
	// StatusRunning means the worker is executing the run.
	StatusRunning Status = "running"
	// StatusCompleted means the run finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the run finished with an error.
	StatusFailed Status = "failed"
	// StatusCancelled means the run was cancelled before the worker started.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final. A terminal status never
// changes again for the lifetime of the record.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Output accumulates the run's produced output. Content and Thinking are
// append-only; Data holds arbitrary structured results.
type Output struct {
	Content  string         `json:"content"`
	Thinking string         `json:"thinking"`
	Data     map[string]any `json:"data,omitempty"`
}

// NodeProgress tracks the execution progress of a single graph node.
type NodeProgress struct {
	Status    string  `json:"status"`
	Progress  float64 `json:"progress,omitempty"`
	Message   string  `json:"message,omitempty"`
	UpdatedAt int64   `json:"updatedAt,omitempty"`
}

// Trace records the execution path through the graph.
type Trace struct {
	ExecutionPath []string                `json:"executionPath"`
	NodesExecuted int                     `json:"nodesExecuted"`
	NodeProgress  map[string]NodeProgress `json:"nodeProgress,omitempty"`
}

// ToolCall summarizes one tool invocation made during the run.
type ToolCall struct {
	Name       string `json:"name"`
	CallID     string `json:"callId,omitempty"`
	Status     string `json:"status"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Error      string `json:"error,omitempty"`
}

// State is the durable record for a single run. One record exists per run,
// keyed by RunID, and expires from the store after a fixed TTL regardless of
// terminal status; there is no explicit deletion path.
type State struct {
	RunID          string `json:"runId"`
	UserID         string `json:"userId"`
	GraphID        string `json:"graphId"`
	GraphName      string `json:"graphName"`
	ConversationID string `json:"conversationId,omitempty"`

	Status      Status `json:"status"`
	StartedAt   int64  `json:"startedAt"`
	CompletedAt int64  `json:"completedAt,omitempty"`

	// Input is immutable after creation.
	Input map[string]any `json:"input,omitempty"`

	Output Output     `json:"output"`
	Graph  Trace      `json:"graph"`
	Tools  []ToolCall `json:"tools,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Clone returns a deep-enough copy of the state for safe concurrent reads.
// Maps and slices are copied one level deep; values inside opaque maps are
// shared, which is fine because callers treat them as read-only.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Input != nil {
		cp.Input = make(map[string]any, len(s.Input))
		for k, v := range s.Input {
			cp.Input[k] = v
		}
	}
	if s.Output.Data != nil {
		cp.Output.Data = make(map[string]any, len(s.Output.Data))
		for k, v := range s.Output.Data {
			cp.Output.Data[k] = v
		}
	}
	if s.Graph.ExecutionPath != nil {
		cp.Graph.ExecutionPath = append([]string(nil), s.Graph.ExecutionPath...)
	}
	if s.Graph.NodeProgress != nil {
		cp.Graph.NodeProgress = make(map[string]NodeProgress, len(s.Graph.NodeProgress))
		for k, v := range s.Graph.NodeProgress {
			cp.Graph.NodeProgress[k] = v
		}
	}
	if s.Tools != nil {
		cp.Tools = append([]ToolCall(nil), s.Tools...)
	}
	return &cp
}

// NewID returns a fresh opaque run identifier. Run IDs must be globally
// unique; callers that bring their own IDs are responsible for that.
func NewID() string {
	return "run_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// now returns the current time in unix milliseconds, the timestamp unit
// used throughout the wire protocol.
func now() int64 {
	return time.Now().UTC().UnixMilli()
}

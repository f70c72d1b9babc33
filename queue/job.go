package queue

import (
	"encoding/json"
	"time"
)

// Type discriminates the kind of work a job carries.
type Type string

const (
	// TypeGraph is a graph run.
	TypeGraph Type = "graph"
	// TypeAutomation is an automation run.
	TypeAutomation Type = "automation"
	// TypeBackground is a deferred background task.
	TypeBackground Type = "background"
)

// Default queue names, one per job type.
const (
	QueueGraphs      = "graphs"
	QueueAutomations = "automations"
	QueueBackground  = "background"
)

// DefaultQueue returns the queue a job type is routed to unless overridden.
func DefaultQueue(t Type) string {
	switch t {
	case TypeAutomation:
		return QueueAutomations
	case TypeBackground:
		return QueueBackground
	default:
		return QueueGraphs
	}
}

// State represents the lifecycle state of a job within the queue layer.
type State string

const (
	// StateWaiting means the job is eligible for dequeue.
	StateWaiting State = "waiting"
	// StateDelayed means the job is enqueued with a future run-at time.
	StateDelayed State = "delayed"
	// StateActive means a worker has picked up the job.
	StateActive State = "active"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the job exhausted its attempts.
	StateFailed State = "failed"
	// StateCancelled means the job was cancelled before pickup.
	StateCancelled State = "cancelled"
)

// Job is a durable unit of work in a named priority queue. Lower Priority
// values are served first; jobs with equal priority are served FIFO.
type Job struct {
	// ID doubles as the idempotency key. For graph and automation jobs
	// it is the run ID.
	ID string `json:"id"`

	Type    Type            `json:"type"`
	Queue   string          `json:"queue"`
	Payload json.RawMessage `json:"payload"`
	State   State           `json:"state"`

	Priority int       `json:"priority"`
	RunAt    time.Time `json:"run_at"`

	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`

	Progress float64         `json:"progress,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`

	// Retention windows applied when the job reaches a final state.
	// Failed jobs are kept longer than completed ones.
	KeepCompleted time.Duration `json:"keep_completed,omitempty"`
	KeepFailed    time.Duration `json:"keep_failed,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Final reports whether the job state will not change again.
func (s State) Final() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// GraphPayload is the payload of a graph run job.
type GraphPayload struct {
	RunID          string         `json:"runId"`
	UserID         string         `json:"userId"`
	GraphID        string         `json:"graphId"`
	ConversationID string         `json:"conversationId,omitempty"`
	Input          map[string]any `json:"input,omitempty"`
	Stream         bool           `json:"stream"`
	Source         string         `json:"source,omitempty"`
	StoreMessage   bool           `json:"storeMessage,omitempty"`
}

// AutomationPayload is the payload of an automation run job.
type AutomationPayload struct {
	RunID        string         `json:"runId"`
	AutomationID string         `json:"automationId"`
	UserID       string         `json:"userId"`
	TriggerType  string         `json:"triggerType"`
	Input        map[string]any `json:"input,omitempty"`
}

// BackgroundPayload is the payload of a background task job.
type BackgroundPayload struct {
	Task   string         `json:"type"`
	UserID string         `json:"userId"`
	Data   map[string]any `json:"data,omitempty"`
}

// Status is the queue-layer view of a job returned by status queries.
type Status struct {
	State    State           `json:"state"`
	Progress float64         `json:"progress,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

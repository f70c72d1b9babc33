package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redbtn-io/runstream"
	"github.com/redbtn-io/runstream/queue"
	"github.com/redbtn-io/runstream/run"
)

// Compile-time interface checks.
var (
	_ run.StateStore = (*Store)(nil)
	_ run.EventLog   = (*Store)(nil)
	_ run.PubSub     = (*Store)(nil)
	_ queue.Store    = (*Store)(nil)
)

// DefaultStateTTL mirrors the redis backend's retention for run state and
// event logs.
const DefaultStateTTL = time.Hour

type stateEntry struct {
	state     *run.State
	expiresAt time.Time
}

type indexEntry struct {
	runID     string
	expiresAt time.Time
}

type logEntry struct {
	events    []*run.Event
	expiresAt time.Time
}

type queuedRef struct {
	jobID string
	score float64
}

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	stateTTL time.Duration

	states   map[string]*stateEntry
	convRuns map[string]indexEntry
	logs     map[string]*logEntry
	jobs     map[string]*queue.Job // key: queue + "/" + jobID
	queues   map[string][]queuedRef

	subs      map[string]map[int]*subscriber
	nextSubID int
}

// Option configures the Store.
type Option func(*Store)

// WithStateTTL overrides the retention for run state and event logs.
func WithStateTTL(ttl time.Duration) Option {
	return func(s *Store) { s.stateTTL = ttl }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		stateTTL: DefaultStateTTL,
		states:   make(map[string]*stateEntry),
		convRuns: make(map[string]indexEntry),
		logs:     make(map[string]*logEntry),
		jobs:     make(map[string]*queue.Job),
		queues:   make(map[string][]queuedRef),
		subs:     make(map[string]map[int]*subscriber),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping always succeeds for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Run state store
// ──────────────────────────────────────────────────

// CreateState writes a new state record. Fails if one already exists.
func (s *Store) CreateState(_ context.Context, state *run.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.states[state.RunID]; ok && time.Now().Before(e.expiresAt) {
		return runstream.ErrRunAlreadyExists
	}
	s.states[state.RunID] = &stateEntry{
		state:     state.Clone(),
		expiresAt: time.Now().Add(s.stateTTL),
	}
	return nil
}

// UpdateState overwrites the whole state record and re-arms its TTL.
func (s *Store) UpdateState(_ context.Context, state *run.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.RunID] = &stateEntry{
		state:     state.Clone(),
		expiresAt: time.Now().Add(s.stateTTL),
	}
	return nil
}

// GetState retrieves the state record for a run.
func (s *Store) GetState(_ context.Context, runID string) (*run.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.states[runID]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, runstream.ErrRunNotFound
	}
	return e.state.Clone(), nil
}

// SetConversationRun indexes the run as the conversation's active run.
func (s *Store) SetConversationRun(_ context.Context, conversationID, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.convRuns[conversationID] = indexEntry{
		runID:     runID,
		expiresAt: time.Now().Add(s.stateTTL),
	}
	return nil
}

// ConversationRun returns the active run ID for a conversation.
func (s *Store) ConversationRun(_ context.Context, conversationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.convRuns[conversationID]
	if !ok || time.Now().After(e.expiresAt) {
		return "", runstream.ErrNoActiveRun
	}
	return e.runID, nil
}

// ──────────────────────────────────────────────────
// Event log
// ──────────────────────────────────────────────────

// AppendEvent adds an event to the tail of the run's log and re-arms the
// log's TTL.
func (s *Store) AppendEvent(_ context.Context, runID string, evt *run.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[runID]
	if !ok || time.Now().After(log.expiresAt) {
		log = &logEntry{}
		s.logs[runID] = log
	}
	cp := *evt
	log.events = append(log.events, &cp)
	log.expiresAt = time.Now().Add(s.stateTTL)
	return nil
}

// Events returns the full ordered event log for a run.
func (s *Store) Events(ctx context.Context, runID string) ([]*run.Event, error) {
	return s.EventsFrom(ctx, runID, 0)
}

// EventsFrom returns the ordered log starting at the given index.
func (s *Store) EventsFrom(_ context.Context, runID string, start int) ([]*run.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[runID]
	if !ok || time.Now().After(log.expiresAt) {
		return []*run.Event{}, nil
	}
	if start < 0 {
		start = 0
	}
	if start >= len(log.events) {
		return []*run.Event{}, nil
	}

	out := make([]*run.Event, 0, len(log.events)-start)
	for _, evt := range log.events[start:] {
		cp := *evt
		out = append(out, &cp)
	}
	return out, nil
}

// EventCount returns the current length of the run's log.
func (s *Store) EventCount(_ context.Context, runID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[runID]
	if !ok || time.Now().After(log.expiresAt) {
		return 0, nil
	}
	return len(log.events), nil
}

// ──────────────────────────────────────────────────
// Job queue
// ──────────────────────────────────────────────────

func jobKey(q, jobID string) string { return q + "/" + jobID }

// jobScore mirrors the redis backend: lower priority values first, FIFO
// within a priority by run-at time.
func jobScore(priority int, runAt time.Time) float64 {
	return float64(priority) + float64(runAt.UnixMilli())/1e15
}

// EnqueueJob persists a new job and adds it to its queue.
func (s *Store) EnqueueJob(_ context.Context, j *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := jobKey(j.Queue, j.ID)
	if _, exists := s.jobs[key]; exists {
		return runstream.ErrJobAlreadyExists
	}
	cp := *j
	s.jobs[key] = &cp
	s.queues[j.Queue] = append(s.queues[j.Queue], queuedRef{
		jobID: j.ID,
		score: jobScore(j.Priority, j.RunAt),
	})
	sort.SliceStable(s.queues[j.Queue], func(a, b int) bool {
		return s.queues[j.Queue][a].score < s.queues[j.Queue][b].score
	})
	return nil
}

// DequeueJobs claims up to limit due jobs from the given queues in
// priority order and marks them active.
func (s *Store) DequeueJobs(_ context.Context, queues []string, limit int) ([]*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var claimed []*queue.Job

	for _, q := range queues {
		if len(claimed) >= limit {
			break
		}
		refs := s.queues[q]
		remaining := refs[:0]
		for _, ref := range refs {
			j, ok := s.jobs[jobKey(q, ref.jobID)]
			if !ok {
				continue
			}
			if len(claimed) >= limit || j.RunAt.After(now) {
				remaining = append(remaining, ref)
				continue
			}
			started := now
			j.State = queue.StateActive
			j.StartedAt = &started
			j.Attempts++
			j.UpdatedAt = now
			cp := *j
			claimed = append(claimed, &cp)
		}
		s.queues[q] = remaining
	}
	return claimed, nil
}

// GetJob retrieves a job by queue and ID.
func (s *Store) GetJob(_ context.Context, q, jobID string) (*queue.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobKey(q, jobID)]
	if !ok {
		return nil, runstream.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(_ context.Context, j *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := jobKey(j.Queue, j.ID)
	if _, ok := s.jobs[key]; !ok {
		return runstream.ErrJobNotFound
	}
	cp := *j
	cp.UpdatedAt = time.Now().UTC()
	s.jobs[key] = &cp
	return nil
}

// RequeueJob writes the job back and re-adds it to its queue.
func (s *Store) RequeueJob(_ context.Context, j *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *j
	cp.UpdatedAt = time.Now().UTC()
	s.jobs[jobKey(j.Queue, j.ID)] = &cp
	s.queues[j.Queue] = append(s.queues[j.Queue], queuedRef{
		jobID: j.ID,
		score: jobScore(j.Priority, j.RunAt),
	})
	sort.SliceStable(s.queues[j.Queue], func(a, b int) bool {
		return s.queues[j.Queue][a].score < s.queues[j.Queue][b].score
	})
	return nil
}

// CancelJob removes a waiting or delayed job from its queue. Returns false
// when the job was already claimed or finished.
func (s *Store) CancelJob(_ context.Context, q, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := s.queues[q]
	idx := -1
	for i, ref := range refs {
		if ref.jobID == jobID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	s.queues[q] = append(refs[:idx], refs[idx+1:]...)

	j, ok := s.jobs[jobKey(q, jobID)]
	if !ok {
		return false, runstream.ErrJobNotFound
	}
	now := time.Now().UTC()
	j.State = queue.StateCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return true, nil
}

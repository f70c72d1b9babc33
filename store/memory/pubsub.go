package memory

import (
	"context"
	"sync"

	"github.com/redbtn-io/runstream/run"
)

// subscriberBuffer is the per-subscriber event buffer. Sends never block:
// a full buffer drops the wake-up, and stream handlers recover from the
// durable log.
const subscriberBuffer = 256

type subscriber struct {
	mu     sync.Mutex
	ch     chan *run.Event
	closed bool
	remove func()
	once   sync.Once
}

// C returns the channel events arrive on.
func (s *subscriber) C() <-chan *run.Event { return s.ch }

// Close releases the subscription. Safe to call multiple times. The
// registry entry is removed before the channel closes so no publisher can
// pick up the subscriber afterwards; the mutex covers publishers that
// already hold it.
func (s *subscriber) Close() {
	s.once.Do(func() {
		s.remove()
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// send delivers an event without blocking.
func (s *subscriber) send(evt *run.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
	default:
	}
}

// Publish broadcasts an event to every current subscriber of the run, in
// publish order per subscriber.
func (s *Store) Publish(_ context.Context, runID string, evt *run.Event) error {
	s.mu.RLock()
	targets := make([]*subscriber, 0, len(s.subs[runID]))
	for _, sub := range s.subs[runID] {
		targets = append(targets, sub)
	}
	s.mu.RUnlock()

	for _, sub := range targets {
		cp := *evt
		sub.send(&cp)
	}
	return nil
}

// Subscribe opens a subscription to the run's live channel.
func (s *Store) Subscribe(_ context.Context, runID string) (run.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++

	sub := &subscriber{ch: make(chan *run.Event, subscriberBuffer)}
	sub.remove = func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[runID], id)
		if len(s.subs[runID]) == 0 {
			delete(s.subs, runID)
		}
	}

	if s.subs[runID] == nil {
		s.subs[runID] = make(map[int]*subscriber)
	}
	s.subs[runID][id] = sub
	return sub, nil
}

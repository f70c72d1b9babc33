package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/redbtn-io/runstream/run"
)

// subscriptionBuffer is the per-subscription event buffer. A slow reader
// that falls this far behind drops wake-ups, which is safe because stream
// handlers re-read the durable log on every wake-up and on keepalive ticks.
const subscriptionBuffer = 256

// Publish broadcasts an event on the run's pub/sub channel. Fan-out only:
// a message published while nobody is subscribed is lost to subscribers;
// durability is the event log's job.
func (s *Store) Publish(ctx context.Context, runID string, evt *run.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("runstream/redis: marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, streamKey(runID), data).Err(); err != nil {
		return fmt.Errorf("runstream/redis: publish event: %w", err)
	}
	return nil
}

// Subscribe opens a subscription to the run's live channel. Each
// subscription independently receives every message published after it is
// established, in publish order.
func (s *Store) Subscribe(ctx context.Context, runID string) (run.Subscription, error) {
	ps := s.client.Subscribe(ctx, streamKey(runID))

	// Force the SUBSCRIBE round-trip so events published after this call
	// returns are guaranteed to be delivered.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("runstream/redis: subscribe %s: %w", runID, err)
	}

	sub := &subscription{
		ps: ps,
		ch: make(chan *run.Event, subscriptionBuffer),
	}
	go sub.forward(ps.Channel(), s.logger, runID)
	return sub, nil
}

type subscription struct {
	ps   *goredis.PubSub
	ch   chan *run.Event
	once sync.Once
}

// C returns the channel events arrive on.
func (s *subscription) C() <-chan *run.Event { return s.ch }

// Close releases the subscription. Safe to call multiple times.
func (s *subscription) Close() {
	s.once.Do(func() {
		_ = s.ps.Close()
	})
}

// forward decodes raw pub/sub messages onto the typed channel. It exits
// and closes the typed channel when the underlying subscription closes.
func (s *subscription) forward(msgs <-chan *goredis.Message, logger *slog.Logger, runID string) {
	defer close(s.ch)
	for msg := range msgs {
		var evt run.Event
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			logger.Warn("dropping undecodable stream message",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
			continue
		}
		select {
		case s.ch <- &evt:
		default:
			// Buffer full. The reader recovers from the durable log.
		}
	}
}

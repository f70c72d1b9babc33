package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redbtn-io/runstream/run"
)

// AppendEvent pushes an event onto the tail of the run's log and re-arms
// the log's TTL in the same pipeline, so an active run's history never
// expires mid-run.
func (s *Store) AppendEvent(ctx context.Context, runID string, evt *run.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("runstream/redis: marshal event: %w", err)
	}

	key := eventsKey(runID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.stateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("runstream/redis: append event: %w", err)
	}
	return nil
}

// Events returns the full ordered event log for a run. A missing key
// yields an empty slice; a run with no events yet is not an error.
func (s *Store) Events(ctx context.Context, runID string) ([]*run.Event, error) {
	return s.readRange(ctx, runID, 0)
}

// EventsFrom returns the ordered log starting at the given 0-based index.
func (s *Store) EventsFrom(ctx context.Context, runID string, start int) ([]*run.Event, error) {
	if start < 0 {
		start = 0
	}
	return s.readRange(ctx, runID, int64(start))
}

// EventCount returns the current length of the run's log.
func (s *Store) EventCount(ctx context.Context, runID string) (int, error) {
	n, err := s.client.LLen(ctx, eventsKey(runID)).Result()
	if err != nil {
		return 0, fmt.Errorf("runstream/redis: event count: %w", err)
	}
	return int(n), nil
}

func (s *Store) readRange(ctx context.Context, runID string, start int64) ([]*run.Event, error) {
	raw, err := s.client.LRange(ctx, eventsKey(runID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("runstream/redis: read events: %w", err)
	}

	events := make([]*run.Event, 0, len(raw))
	for _, item := range raw {
		var evt run.Event
		if err := json.Unmarshal([]byte(item), &evt); err != nil {
			return nil, fmt.Errorf("runstream/redis: unmarshal event: %w", err)
		}
		events = append(events, &evt)
	}
	return events, nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/redbtn-io/runstream"
	"github.com/redbtn-io/runstream/run"
)

// CreateState writes a new run state record with TTL. SET NX is the
// idempotency boundary: a second create for the same run ID fails.
func (s *Store) CreateState(ctx context.Context, state *run.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("runstream/redis: marshal state: %w", err)
	}

	ok, err := s.client.SetNX(ctx, stateKey(state.RunID), data, s.stateTTL).Result()
	if err != nil {
		return fmt.Errorf("runstream/redis: create state: %w", err)
	}
	if !ok {
		return runstream.ErrRunAlreadyExists
	}
	return nil
}

// UpdateState overwrites the whole state record and re-arms its TTL.
func (s *Store) UpdateState(ctx context.Context, state *run.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("runstream/redis: marshal state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(state.RunID), data, s.stateTTL).Err(); err != nil {
		return fmt.Errorf("runstream/redis: update state: %w", err)
	}
	return nil
}

// GetState retrieves the state record for a run.
func (s *Store) GetState(ctx context.Context, runID string) (*run.State, error) {
	data, err := s.client.Get(ctx, stateKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, runstream.ErrRunNotFound
		}
		return nil, fmt.Errorf("runstream/redis: get state: %w", err)
	}

	var state run.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("runstream/redis: unmarshal state: %w", err)
	}
	return &state, nil
}

// SetConversationRun indexes the run as the conversation's active run with
// the same TTL as the state record.
func (s *Store) SetConversationRun(ctx context.Context, conversationID, runID string) error {
	if err := s.client.Set(ctx, conversationRunKey(conversationID), runID, s.stateTTL).Err(); err != nil {
		return fmt.Errorf("runstream/redis: set conversation run: %w", err)
	}
	return nil
}

// ConversationRun returns the active run ID for a conversation.
func (s *Store) ConversationRun(ctx context.Context, conversationID string) (string, error) {
	runID, err := s.client.Get(ctx, conversationRunKey(conversationID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", runstream.ErrNoActiveRun
		}
		return "", fmt.Errorf("runstream/redis: get conversation run: %w", err)
	}
	return runID, nil
}

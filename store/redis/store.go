package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

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

// DefaultStateTTL is the retention for run state, the conversation index,
// and the event log. The event log's TTL is re-armed on every append.
const DefaultStateTTL = time.Hour

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithStateTTL overrides the retention for run state and event logs.
func WithStateTTL(ttl time.Duration) Option {
	return func(s *Store) { s.stateTTL = ttl }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client   *redis.Client
	logger   *slog.Logger
	stateTTL time.Duration
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle: open it at service start, close it at shutdown. The concrete
// client type (rather than redis.Cmdable) is required because pub/sub
// subscriptions are not part of the Cmdable surface.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default(), stateTTL: DefaultStateTTL}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() *redis.Client { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

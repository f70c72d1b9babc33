// Package redis implements store.Store using Redis. Run state and jobs are
// stored as JSON string values with native key expiry, the event log is a
// Redis List whose TTL is re-armed on every append, live fan-out uses
// native pub/sub channels, and queues are Sorted Sets scored by priority.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

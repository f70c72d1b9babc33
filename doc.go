// Package runstream decouples long-running AI graph runs from the client
// connections that watch them. A run's state lives in a shared store, every
// event it produces is appended to an ordered, replayable log, and any number
// of clients can attach to the same run at any time; each one replays the
// history it missed and then follows live output over a reconnectable
// event-stream protocol.
//
// Runstream is a library, not a service. Construct a store backend, wire a
// Service, and register job handlers as ordinary Go functions:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s, err := runstream.New(
//	    runstream.WithStore(redisstore.New(client)),
//	    runstream.WithConcurrency(20),
//	)
//
// # Architecture
//
// Each subsystem defines its own persistence contract (run state, event log,
// pub/sub fan-out, job queue); a single backend implements all of them. The
// worker that executes a run is reached only through the job queue and the
// shared store; the streaming path holds no in-process handle to it, which
// is what lets a client disconnect without affecting the run.
package runstream

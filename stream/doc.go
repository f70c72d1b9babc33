// Package stream serves run event streams over Server-Sent Events. Each
// connection authenticates, verifies run ownership, replays the events the
// client missed, and then follows live output; reconnecting clients
// resume exactly where they left off via the Last-Event-ID header.
//
// A connection moves through four states: connecting, replaying history,
// live streaming, closed. The critical ordering is subscribe-first: the
// handler opens its live subscription before reading the stored log, then
// reconciles anything appended during replay, so no event can fall into
// the gap between "read history" and "go live". Disconnecting never
// cancels the run; the worker continues regardless of connection state.
package stream

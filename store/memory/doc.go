// Package memory implements store.Store entirely in memory. Safe for
// concurrent access. Intended for unit testing and development; expiry is
// honored lazily on access rather than by a background sweeper.
package memory

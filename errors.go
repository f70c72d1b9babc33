package runstream

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("runstream: no store configured")
	ErrStoreClosed = errors.New("runstream: store closed")

	// Not found errors.
	ErrRunNotFound = errors.New("runstream: run not found")
	ErrJobNotFound = errors.New("runstream: job not found")
	ErrNoActiveRun = errors.New("runstream: no active run for conversation")

	// Conflict errors.
	ErrRunAlreadyExists = errors.New("runstream: run already exists")
	ErrJobAlreadyExists = errors.New("runstream: job already exists")

	// State errors.
	ErrInvalidState = errors.New("runstream: invalid state transition")
)

package entities

import "errors"

var (
	// ErrDuplicateSession is returned by connect when the connection id is
	// already registered. Existing state is never silently replaced.
	ErrDuplicateSession = errors.New("session already exists for connection id")

	// ErrUnknownSession is returned when a frame arrives for a connection id
	// that was never registered or is already gone.
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionNotFound is returned by disconnect when the connection id is
	// absent and no cached final result remains.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when an operation targets a session that
	// has already completed its teardown.
	ErrSessionClosed = errors.New("session closed")
)

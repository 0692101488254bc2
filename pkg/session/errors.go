package session

import "errors"

// Session errors.
var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session: not found")

	// ErrExpired is returned when a session has expired.
	ErrExpired = errors.New("session: expired")

	// ErrInvalidToken is returned when a session token is invalid.
	ErrInvalidToken = errors.New("session: invalid token")

	// ErrStoreFailed is returned when the backing store cannot be reached.
	ErrStoreFailed = errors.New("session: store failed")

	// ErrNoSession is returned when no session is attached to the request context.
	ErrNoSession = errors.New("session: no session in context")
)

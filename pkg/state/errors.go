package state

import "errors"

var (
	// ErrClosed is returned when an operation is attempted on a closed store.
	ErrClosed = errors.New("state: store closed")

	// ErrEmptyKey is returned when an empty key is written.
	ErrEmptyKey = errors.New("state: empty key")
)

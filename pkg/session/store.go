package session

import "context"

// Store defines the interface for session persistence.
// Sessions are addressed by token on read and by ID on delete,
// so implementations must keep the token index current across rotations.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by its token.
	// Returns ErrNotFound if the session doesn't exist.
	// Returns ErrExpired if the session has expired.
	Get(ctx context.Context, token string) (*Session, error)

	// Update saves changes to an existing session.
	// A changed token invalidates the previous one.
	Update(ctx context.Context, s *Session) error

	// Delete removes a session by its ID. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
}

package state

import (
	"context"
	"time"
)

// DefaultTTL is how long an issued authorization state stays valid.
const DefaultTTL = 600 * time.Second

// keyPrefix namespaces state keys inside a shared store.
const keyPrefix = "oauth2_state_"

// Store is a time-bounded key existence store.
// Implementations must rely on the backend's own atomicity for Forget;
// no client-side locking is assumed across processes.
type Store interface {
	// Put registers key with the given TTL. A non-positive TTL uses DefaultTTL.
	Put(ctx context.Context, key string, ttl time.Duration) error

	// Has reports whether key exists and has not expired.
	Has(ctx context.Context, key string) (bool, error)

	// Forget removes key and reports whether it was present before removal.
	Forget(ctx context.Context, key string) (bool, error)
}

// Key returns the store key for an authorization state value.
func Key(state string) string {
	return keyPrefix + state
}

package state

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. Expired keys are dropped lazily on access
// and periodically by a janitor goroutine.
type Memory struct {
	items   map[string]time.Time
	done    chan struct{}
	now     func() time.Time
	mu      sync.Mutex
	closed  bool
	cleanup time.Duration
}

// MemoryOption configures the in-memory store.
type MemoryOption func(*Memory)

// WithCleanupInterval sets how often expired keys are swept.
// Zero disables the janitor. Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *Memory) {
		m.cleanup = d
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory creates an in-memory state store.
// Call Close to stop the background janitor.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		items:   make(map[string]time.Time),
		done:    make(chan struct{}),
		now:     time.Now,
		cleanup: time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.cleanup > 0 {
		go m.janitor()
	}

	return m
}

// Put registers key with the given TTL.
func (m *Memory) Put(_ context.Context, key string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.items[key] = m.now().Add(ttl)
	return nil
}

// Has reports whether key exists and has not expired.
func (m *Memory) Has(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.items[key]
	if !ok {
		return false, nil
	}
	if m.now().After(expiresAt) {
		delete(m.items, key)
		return false, nil
	}
	return true, nil
}

// Forget removes key and reports whether a live entry was removed.
func (m *Memory) Forget(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}

	expiresAt, ok := m.items[key]
	if !ok {
		return false, nil
	}
	delete(m.items, key)

	return !m.now().After(expiresAt), nil
}

// TTL returns the remaining lifetime of key, or zero if it is absent or expired.
func (m *Memory) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.items[key]
	if !ok {
		return 0
	}
	return max(expiresAt.Sub(m.now()), 0)
}

// Len returns the number of tracked keys, expired ones included until swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close stops the janitor. Close is idempotent.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(m.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.deleteExpired()
		}
	}
}

func (m *Memory) deleteExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, expiresAt := range m.items {
		if now.After(expiresAt) {
			delete(m.items, key)
		}
	}
}

var _ Store = (*Memory)(nil)

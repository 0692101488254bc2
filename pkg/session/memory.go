package session

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Memory is an in-process Store. Sessions are lost on restart.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*Session // by ID
	tokens   map[string]string   // token -> ID
	now      func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*Session),
		tokens:   make(map[string]string),
		now:      time.Now,
	}
}

// Create persists a new session.
func (m *Memory) Create(_ context.Context, s *Session) error {
	if s.Token == "" {
		return ErrInvalidToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(s)
	return nil
}

// Get retrieves a session by token.
func (m *Memory) Get(_ context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	m.mu.RLock()
	id, ok := m.tokens[token]
	var stored *Session
	if ok {
		stored = m.sessions[id]
	}
	m.mu.RUnlock()

	if stored == nil {
		return nil, ErrNotFound
	}
	if m.now().After(stored.ExpiresAt) {
		_ = m.Delete(context.Background(), stored.ID)
		return nil, ErrExpired
	}
	return clone(stored), nil
}

// Update saves changes and drops the previous token when it was rotated.
func (m *Memory) Update(_ context.Context, s *Session) error {
	if s.Token == "" {
		return ErrInvalidToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.Token != s.Token {
		delete(m.tokens, prev.Token)
	}
	m.put(s)
	return nil
}

// Delete removes a session by ID.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sessions[id]; ok {
		delete(m.tokens, prev.Token)
		delete(m.sessions, id)
	}
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Memory) put(s *Session) {
	m.sessions[s.ID] = clone(s)
	m.tokens[s.Token] = s.ID
}

func clone(s *Session) *Session {
	c := *s
	c.Values = maps.Clone(s.Values)
	if c.Values == nil {
		c.Values = make(map[string]any)
	}
	c.dirty = false
	c.isNew = false
	return &c
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "session"

// Redis is a Store backed by Redis. Each session is stored as JSON under
// its token, with a second key mapping the session ID to the current token.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures the Redis store.
type RedisOption func(*Redis)

// WithRedisPrefix sets the key prefix. Defaults to "session".
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedis creates a Redis-backed session store.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) tokenKey(token string) string { return r.prefix + ":token:" + token }
func (r *Redis) idKey(id string) string       { return r.prefix + ":id:" + id }

// Create persists a new session.
func (r *Redis) Create(ctx context.Context, s *Session) error {
	if s.Token == "" {
		return ErrInvalidToken
	}
	return r.write(ctx, s, "")
}

// Get retrieves a session by token.
func (r *Redis) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	raw, err := r.client.Get(ctx, r.tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreFailed, err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Join(ErrStoreFailed, err)
	}
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	if s.IsExpired() {
		return nil, ErrExpired
	}
	return &s, nil
}

// Update saves changes and drops the previous token when it was rotated.
func (r *Redis) Update(ctx context.Context, s *Session) error {
	if s.Token == "" {
		return ErrInvalidToken
	}

	prev, err := r.client.Get(ctx, r.idKey(s.ID)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return r.write(ctx, s, prev)
}

// Delete removes a session by ID.
func (r *Redis) Delete(ctx context.Context, id string) error {
	token, err := r.client.Get(ctx, r.idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	if err := r.client.Del(ctx, r.idKey(id), r.tokenKey(token)).Err(); err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return nil
}

func (r *Redis) write(ctx context.Context, s *Session, prevToken string) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return ErrExpired
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return errors.Join(ErrStoreFailed, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prevToken != "" && prevToken != s.Token {
			pipe.Del(ctx, r.tokenKey(prevToken))
		}
		pipe.Set(ctx, r.tokenKey(s.Token), raw, ttl)
		pipe.Set(ctx, r.idKey(s.ID), s.Token, ttl)
		return nil
	})
	if err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return nil
}

// Package ratelimit provides per-key token bucket limiting with LRU eviction.
package ratelimit

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for the authorization start endpoint.
const (
	DefaultRate       = 1.0 // tokens per second
	DefaultBurst      = 10
	DefaultMaxEntries = 10_000
	DefaultIdleTTL    = 30 * time.Minute
)

type entry struct {
	key        string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter tracks one token bucket per key. When maxEntries is reached the
// least recently used bucket is evicted.
type Limiter struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List
	limit      rate.Limit
	burst      int
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time
	evictions  int64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMaxEntries bounds the number of tracked keys. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(l *Limiter) {
		if n >= 0 {
			l.maxEntries = n
		}
	}
}

// WithLogger sets the logger for eviction events.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.logger = log
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a limiter allowing perSecond events per key with the given burst.
func New(perSecond float64, burst int, opts ...Option) *Limiter {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	l := &Limiter{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		limit:      rate.Limit(perSecond),
		burst:      burst,
		maxEntries: DefaultMaxEntries,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether an event for key may happen now.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.entries[key]; ok {
		l.lru.MoveToFront(elem)
		e := elem.Value.(*entry)
		e.lastAccess = now
		return e.limiter.AllowN(now, 1)
	}

	if l.maxEntries > 0 && len(l.entries) >= l.maxEntries {
		l.evictOldest()
	}

	e := &entry{key: key, limiter: rate.NewLimiter(l.limit, l.burst), lastAccess: now}
	l.entries[key] = l.lru.PushFront(e)
	return e.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Cleanup drops buckets idle for longer than maxIdle and returns how many were removed.
func (l *Limiter) Cleanup(maxIdle time.Duration) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for elem := l.lru.Back(); elem != nil; {
		prev := elem.Prev()
		e := elem.Value.(*entry)
		if now.Sub(e.lastAccess) <= maxIdle {
			break
		}
		delete(l.entries, e.key)
		l.lru.Remove(elem)
		removed++
		elem = prev
	}
	return removed
}

// Run calls Cleanup every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Cleanup(maxIdle); n > 0 {
				l.logger.DebugContext(ctx, "rate limiter cleanup", slog.Int("removed", n))
			}
		}
	}
}

// must be called with mu held
func (l *Limiter) evictOldest() {
	elem := l.lru.Back()
	if elem == nil {
		return
	}
	e := elem.Value.(*entry)
	delete(l.entries, e.key)
	l.lru.Remove(elem)
	l.evictions++
	l.logger.Debug("rate limiter eviction",
		slog.String("key", e.key),
		slog.Int64("total_evictions", l.evictions),
	)
}

// internal/app/system/scheme/replay.go
package scheme

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard remembers consumed one-time values until they expire.
type ReplayGuard interface {
	// Seen reports whether id was already consumed as of now, and marks it
	// consumed until expiresAt if not. now comes from the caller's clock so
	// both times share one timeline.
	Seen(ctx context.Context, id string, now, expiresAt time.Time) (bool, error)
}

// MemoryReplay is a process-local ReplayGuard. Expired entries are purged on
// a timer until Stop is called, measured against the latest caller time.
type MemoryReplay struct {
	mu     sync.Mutex
	seen   map[string]time.Time // id -> expiry
	latest time.Time

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func NewMemoryReplay(cleanupInterval time.Duration) *MemoryReplay {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	m := &MemoryReplay{
		seen:   make(map[string]time.Time),
		ticker: time.NewTicker(cleanupInterval),
		done:   make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func (m *MemoryReplay) Seen(_ context.Context, id string, now, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.After(m.latest) {
		m.latest = now
	}
	if exp, ok := m.seen[id]; ok {
		if now.Before(exp) {
			return true, nil
		}
		delete(m.seen, id)
	}
	m.seen[id] = expiresAt
	return false, nil
}

func (m *MemoryReplay) cleanupLoop() {
	for {
		select {
		case <-m.ticker.C:
			m.mu.Lock()
			now := m.latest
			m.mu.Unlock()
			m.purge(now)
		case <-m.done:
			m.ticker.Stop()
			return
		}
	}
}

func (m *MemoryReplay) purge(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, exp := range m.seen {
		if now.After(exp) {
			delete(m.seen, id)
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (m *MemoryReplay) Stop() {
	m.once.Do(func() { close(m.done) })
}

// RedisReplay shares consumed values across instances with SET NX.
type RedisReplay struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisReplay(rdb *redis.Client, prefix string) *RedisReplay {
	if prefix == "" {
		prefix = "strataauth:replay:"
	}
	return &RedisReplay{rdb: rdb, prefix: prefix}
}

func (r *RedisReplay) Seen(ctx context.Context, id string, now, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Second
	}
	ok, err := r.rdb.SetNX(ctx, r.prefix+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay guard: %w", err)
	}
	return !ok, nil
}

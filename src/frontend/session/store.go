// Package session remembers which store cart belongs to which storefront
// session.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultTTL     = 14 * 24 * time.Hour
	cartTokenField = "cart_token"
)

type Store interface {
	CartToken(ctx context.Context, sessionID string) (string, error)
	SetCartToken(ctx context.Context, sessionID, token string) error
	Delete(ctx context.Context, sessionID string) error
}

// RedisStore keeps one hash per session. Every access extends its TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string { return fmt.Sprintf("session:%s", id) }

func (r *RedisStore) CartToken(ctx context.Context, sessionID string) (string, error) {
	key := sessionKey(sessionID)
	token, err := r.rdb.HGet(ctx, key, cartTokenField).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "read session %s", sessionID)
	}
	if err := r.rdb.Expire(ctx, key, r.ttl).Err(); err != nil {
		return "", errors.Wrapf(err, "touch session %s", sessionID)
	}
	return token, nil
}

func (r *RedisStore) SetCartToken(ctx context.Context, sessionID, token string) error {
	key := sessionKey(sessionID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, cartTokenField, token)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "write session %s", sessionID)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return errors.Wrapf(r.rdb.Del(ctx, sessionKey(sessionID)).Err(), "delete session %s", sessionID)
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryStore is used when Redis is not configured. Tokens do not survive a
// restart.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (m *MemoryStore) CartToken(ctx context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return "", nil
	}
	now := m.now()
	if now.After(e.expires) {
		delete(m.entries, sessionID)
		return "", nil
	}
	e.expires = now.Add(m.ttl)
	m.entries[sessionID] = e
	return e.token, nil
}

func (m *MemoryStore) SetCartToken(ctx context.Context, sessionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sessionID] = memoryEntry{token: token, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}

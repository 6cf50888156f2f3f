package channels

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Marker is the local "already sent" store consulted before every side effect.
type Marker interface {
	Seen(ctx context.Context, key string) (resultRef string, seen bool, err error)
	Mark(ctx context.Context, key string, resultRef string) error
}

type MemoryMarker struct {
	mu   sync.Mutex
	refs map[string]string
}

func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{refs: make(map[string]string)}
}

func (m *MemoryMarker) Seen(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.refs[key]
	return ref, ok, nil
}

func (m *MemoryMarker) Mark(_ context.Context, key string, resultRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refs[key]; !ok {
		m.refs[key] = resultRef
	}
	return nil
}

// RedisMarker keeps markers in Redis with a TTL long enough to outlive any
// retry window.
type RedisMarker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisMarker(client redis.UniversalClient, ttl time.Duration) *RedisMarker {
	return &RedisMarker{client: client, prefix: "courseflow:dispatched:", ttl: ttl}
}

func (m *RedisMarker) Seen(ctx context.Context, key string) (string, bool, error) {
	ref, err := m.client.Get(ctx, m.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ref, true, nil
}

func (m *RedisMarker) Mark(ctx context.Context, key string, resultRef string) error {
	return m.client.SetNX(ctx, m.prefix+key, resultRef, m.ttl).Err()
}

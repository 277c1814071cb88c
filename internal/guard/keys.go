// Package guard provides short-lived keys in Redis or memory, used to stop
// concurrent duplicate admin actions and to remember revoked sessions.
package guard

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys is a minimal expiring key set.
type Keys interface {
	// SetNX sets key if absent and reports whether it did.
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// RedisKeys stores keys in Redis under a prefix.
type RedisKeys struct {
	client *redis.Client
	prefix string
}

// NewRedisKeys builds a Redis-backed key set.
func NewRedisKeys(client *redis.Client, prefix string) *RedisKeys {
	if prefix == "" {
		prefix = "club:guard:"
	}
	return &RedisKeys{client: client, prefix: prefix}
}

func (k *RedisKeys) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return k.client.SetNX(ctx, k.prefix+key, "1", ttl).Result()
}

func (k *RedisKeys) Exists(ctx context.Context, key string) (bool, error) {
	n, err := k.client.Exists(ctx, k.prefix+key).Result()
	return n > 0, err
}

func (k *RedisKeys) Delete(ctx context.Context, key string) error {
	return k.client.Del(ctx, k.prefix+key).Err()
}

// MemoryKeys is a process-local key set for a single API instance.
type MemoryKeys struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryKeys builds an empty in-memory key set.
func NewMemoryKeys() *MemoryKeys {
	return &MemoryKeys{keys: map[string]time.Time{}, now: time.Now}
}

func (k *MemoryKeys) live(key string) bool {
	exp, ok := k.keys[key]
	if !ok {
		return false
	}
	if !k.now().Before(exp) {
		delete(k.keys, key)
		return false
	}
	return true
}

func (k *MemoryKeys) SetNX(_ context.Context, key string, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.live(key) {
		return false, nil
	}
	k.keys[key] = k.now().Add(ttl)
	return true, nil
}

func (k *MemoryKeys) Exists(_ context.Context, key string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.live(key), nil
}

func (k *MemoryKeys) Delete(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, key)
	return nil
}

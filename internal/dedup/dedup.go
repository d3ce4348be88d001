// Package dedup keeps re-syncs idempotent: a message whose dedup key has
// been seen within the retention window is dropped before it reaches the
// inbox store.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a seen key is remembered. Platforms do not
// resurface interactions older than this in any sync window we fetch.
const DefaultTTL = 7 * 24 * time.Hour

// Deduper answers "has this message been ingested before". Seen both
// checks and marks: the first caller for a key gets true, every later
// caller within the TTL gets false.
type Deduper interface {
	// Seen returns true when the key is new and has now been marked.
	Seen(ctx context.Context, key string) (bool, error)
	// Forget drops one key, e.g. after a failed store write so the next
	// sync round retries the message.
	Forget(ctx context.Context, key string) error
}

// RedisDeduper marks keys in Redis with SET NX, so deduplication holds
// across processes and restarts.
type RedisDeduper struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedis creates a Redis-backed deduper. A non-positive ttl falls back
// to DefaultTTL.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisDeduper{client: client, ttl: ttl, prefix: "inbox:seen:"}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
}

func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.prefix+key).Err()
}

// MemoryDeduper is the in-process fallback used when Redis is not
// configured, and in tests. Entries expire lazily on access.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemory(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryDeduper{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (d *MemoryDeduper) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return false, nil
	}
	d.seen[key] = now
	return true, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

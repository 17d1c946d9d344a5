package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache driver names accepted by NewCache.
const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// Cache is a best-effort TTL cache for retrieved passages, scoped to the
// retriever that owns it. Lookup failures are treated as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]string, bool)
	Set(ctx context.Context, key string, passages []string)
	Close() error
}

// NewCache selects a cache driver. The redis driver requires a client.
func NewCache(driver string, ttl time.Duration, client *redis.Client) (Cache, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	switch driver {
	case CacheDriverMemory, "":
		return &memoryCache{
			entries: make(map[string]memoryEntry),
			ttl:     ttl,
		}, nil
	case CacheDriverRedis:
		if client == nil {
			return nil, fmt.Errorf("redis cache driver requires a redis client")
		}
		return &redisCache{client: client, ttl: ttl}, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", driver)
	}
}

type memoryEntry struct {
	passages  []string
	expiresAt time.Time
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	closed  bool
}

func (c *memoryCache) Get(_ context.Context, key string) ([]string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	closed := c.closed
	c.mu.RUnlock()

	if closed || !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.passages, true
}

// Set also sweeps expired entries, so distinct queries do not accumulate
// past their TTL. Writes after Close are silently dropped; sessions can
// still be mid-turn while the process shuts down.
func (c *memoryCache) Set(_ context.Context, key string, passages []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	now := time.Now()
	for k, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, k)
		}
	}

	c.entries[key] = memoryEntry{
		passages:  passages,
		expiresAt: now.Add(c.ttl),
	}
}

func (c *memoryCache) Close() error {
	c.mu.Lock()
	c.closed = true
	c.entries = nil
	c.mu.Unlock()
	return nil
}

const redisKeyPrefix = "passages:"

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (c *redisCache) Get(ctx context.Context, key string) ([]string, bool) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("[retrieval] cache read failed: %v", err)
		return nil, false
	}

	var passages []string
	if err := json.Unmarshal([]byte(val), &passages); err != nil {
		log.Printf("[retrieval] cache entry corrupt: %v", err)
		return nil, false
	}
	return passages, true
}

func (c *redisCache) Set(ctx context.Context, key string, passages []string) {
	val, err := json.Marshal(passages)
	if err != nil {
		log.Printf("[retrieval] cache marshal failed: %v", err)
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, val, c.ttl).Err(); err != nil {
		log.Printf("[retrieval] cache write failed: %v", err)
	}
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

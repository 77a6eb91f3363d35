package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"permission-service/internal/models"
	"permission-service/pkg/metrics"
)

// PermissionCache stores resolved levels in front of the resolver.
// Get never returns an entry past its TTL, and an Invalidate call that
// has returned is visible to every later Get: a revoked-then-requested
// sequence must not serve a stale level in either direction.
type PermissionCache interface {
	Get(ctx context.Context, principalID, resourceID string) (models.PermissionLevel, bool, error)
	Put(ctx context.Context, principalID, resourceID string, level models.PermissionLevel) error
	Invalidate(ctx context.Context, resourceID string) error
	InvalidateMany(ctx context.Context, resourceIDs []string) error
}

type memoryCacheEntry struct {
	level     models.PermissionLevel
	expiresAt time.Time
}

// MemoryPermissionCache is the in-process implementation, used when no
// Redis address is configured and in tests. A secondary index by
// resource id makes invalidation a map sweep instead of a full scan.
type MemoryPermissionCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	entries    map[string]memoryCacheEntry
	byResource map[string]map[string]struct{}
}

func NewMemoryPermissionCache(ttl time.Duration) *MemoryPermissionCache {
	return &MemoryPermissionCache{
		ttl:        ttl,
		entries:    make(map[string]memoryCacheEntry),
		byResource: make(map[string]map[string]struct{}),
	}
}

func cacheKey(principalID, resourceID string) string {
	return principalID + "/" + resourceID
}

func (c *MemoryPermissionCache) Get(ctx context.Context, principalID, resourceID string) (models.PermissionLevel, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(principalID, resourceID)
	entry, ok := c.entries[key]
	if !ok {
		metrics.CacheMisses.Inc()
		return models.LevelNone, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.unindex(resourceID, key)
		metrics.CacheMisses.Inc()
		return models.LevelNone, false, nil
	}

	metrics.CacheHits.Inc()
	return entry.level, true, nil
}

func (c *MemoryPermissionCache) Put(ctx context.Context, principalID, resourceID string, level models.PermissionLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(principalID, resourceID)
	c.entries[key] = memoryCacheEntry{level: level, expiresAt: time.Now().Add(c.ttl)}

	keys, ok := c.byResource[resourceID]
	if !ok {
		keys = make(map[string]struct{})
		c.byResource[resourceID] = keys
	}
	keys[key] = struct{}{}
	return nil
}

func (c *MemoryPermissionCache) Invalidate(ctx context.Context, resourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(resourceID)
	return nil
}

func (c *MemoryPermissionCache) InvalidateMany(ctx context.Context, resourceIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, resourceID := range resourceIDs {
		c.invalidateLocked(resourceID)
	}
	return nil
}

func (c *MemoryPermissionCache) invalidateLocked(resourceID string) {
	for key := range c.byResource[resourceID] {
		delete(c.entries, key)
	}
	delete(c.byResource, resourceID)
}

func (c *MemoryPermissionCache) unindex(resourceID, key string) {
	if keys, ok := c.byResource[resourceID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byResource, resourceID)
		}
	}
}

// CacheBackend is the distributed key-value surface the Redis-backed
// cache and pending-event store sit on. Satisfied by the Redis
// repository.
type CacheBackend interface {
	SaveStructCached(ctx context.Context, key string, model any, ttl time.Duration) error
	GetStructCached(ctx context.Context, key string, model any) error
	Delete(ctx context.Context, keys ...string) error
	AddSetMember(ctx context.Context, key, member string, ttl time.Duration) error
	GetSetMembers(ctx context.Context, key string) ([]string, error)
}

type redisCacheEntry struct {
	Level      int   `json:"level"`
	ResolvedAt int64 `json:"resolvedAt"`
}

// RedisPermissionCache shares resolved levels across instances. Entry
// expiry rides on the Redis TTL; a per-resource index set makes
// invalidation delete exactly the keys for that resource.
type RedisPermissionCache struct {
	backend CacheBackend
	ttl     time.Duration
}

func NewRedisPermissionCache(backend CacheBackend, ttl time.Duration) *RedisPermissionCache {
	return &RedisPermissionCache{backend: backend, ttl: ttl}
}

func redisEntryKey(principalID, resourceID string) string {
	return fmt.Sprintf("perm:level:%s:%s", resourceID, principalID)
}

func redisIndexKey(resourceID string) string {
	return "perm:idx:" + resourceID
}

func (c *RedisPermissionCache) Get(ctx context.Context, principalID, resourceID string) (models.PermissionLevel, bool, error) {
	var entry redisCacheEntry
	err := c.backend.GetStructCached(ctx, redisEntryKey(principalID, resourceID), &entry)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			metrics.CacheMisses.Inc()
			return models.LevelNone, false, nil
		}
		return models.LevelNone, false, fmt.Errorf("permission cache read: %w", err)
	}

	metrics.CacheHits.Inc()
	return models.PermissionLevel(entry.Level), true, nil
}

func (c *RedisPermissionCache) Put(ctx context.Context, principalID, resourceID string, level models.PermissionLevel) error {
	key := redisEntryKey(principalID, resourceID)
	entry := redisCacheEntry{Level: int(level), ResolvedAt: time.Now().Unix()}
	if err := c.backend.SaveStructCached(ctx, key, entry, c.ttl); err != nil {
		return fmt.Errorf("permission cache write: %w", err)
	}
	// The index must outlive its entries or invalidation would miss
	// keys that are still alive.
	if err := c.backend.AddSetMember(ctx, redisIndexKey(resourceID), key, 2*c.ttl); err != nil {
		return fmt.Errorf("permission cache index write: %w", err)
	}
	return nil
}

func (c *RedisPermissionCache) Invalidate(ctx context.Context, resourceID string) error {
	indexKey := redisIndexKey(resourceID)
	keys, err := c.backend.GetSetMembers(ctx, indexKey)
	if err != nil {
		return fmt.Errorf("permission cache invalidate: %w", err)
	}
	keys = append(keys, indexKey)
	if err := c.backend.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("permission cache invalidate: %w", err)
	}
	return nil
}

func (c *RedisPermissionCache) InvalidateMany(ctx context.Context, resourceIDs []string) error {
	for _, resourceID := range resourceIDs {
		if err := c.Invalidate(ctx, resourceID); err != nil {
			return err
		}
	}
	return nil
}

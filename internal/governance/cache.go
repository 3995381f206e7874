package governance

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"lotauction/internal/domain"
	applog "lotauction/internal/log"
)

// Cache holds JSON-encoded governance rows. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// MemoryCache is the single-process cache used when no redis is configured.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemoryCache() *MemoryCache { return &MemoryCache{m: map[string][]byte{}} }

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, val []byte) error {
	c.mu.Lock()
	c.m[key] = val
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.m, k)
	}
	c.mu.Unlock()
	return nil
}

// RedisCache shares the cache between instances so an admin update on one
// node invalidates reads on all of them.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "lotauction:governance:", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte) error {
	return c.rdb.Set(ctx, c.prefix+key, val, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	return c.rdb.Del(ctx, full...).Err()
}

const settingsKey = "settings"

func templateKey(id string) string { return "template:" + id }

// CachedStore is a read-through Store. Cache faults fall back to the backing store.
type CachedStore struct {
	backing Store
	cache   Cache
}

func NewCachedStore(backing Store, cache Cache) *CachedStore {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &CachedStore{backing: backing, cache: cache}
}

func (s *CachedStore) Settings(ctx context.Context) (domain.GovernanceSettings, error) {
	var out domain.GovernanceSettings
	if s.lookup(ctx, settingsKey, &out) {
		return out, nil
	}
	out, err := s.backing.Settings(ctx)
	if err != nil {
		return out, err
	}
	s.store(ctx, settingsKey, out)
	return out, nil
}

func (s *CachedStore) Template(ctx context.Context, id string) (domain.AuctionTemplate, error) {
	var out domain.AuctionTemplate
	if s.lookup(ctx, templateKey(id), &out) {
		return out, nil
	}
	out, err := s.backing.Template(ctx, id)
	if err != nil {
		return out, err
	}
	s.store(ctx, templateKey(id), out)
	return out, nil
}

// InvalidateSettings must be called after every settings write.
func (s *CachedStore) InvalidateSettings(ctx context.Context) {
	if err := s.cache.Delete(ctx, settingsKey); err != nil {
		applog.Fail("governance.cache.invalidate", err, map[string]any{"key": settingsKey})
	}
}

// InvalidateTemplate must be called after every write to template id.
func (s *CachedStore) InvalidateTemplate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, templateKey(id)); err != nil {
		applog.Fail("governance.cache.invalidate", err, map[string]any{"key": templateKey(id)})
	}
}

func (s *CachedStore) lookup(ctx context.Context, key string, dst any) bool {
	b, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		applog.Warn("governance.cache.read", map[string]any{"key": key, "err": err.Error()})
		return false
	}
	if !ok {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}

func (s *CachedStore) store(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, b); err != nil {
		applog.Warn("governance.cache.write", map[string]any{"key": key, "err": err.Error()})
	}
}

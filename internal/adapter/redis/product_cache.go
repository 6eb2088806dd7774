package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const productCacheTTL = 10 * time.Minute

// ProductCache serves products by slug from memory, then Redis, then the
// repository. Concurrent misses for one slug share a single load.
type ProductCache struct {
	rdb      goredis.Cmdable
	products domain.ProductRepository
	mem      *memoryCache[domain.Product]
	group    singleflight.Group
	metrics  *metrics.CacheMetrics
}

var _ domain.ProductCache = (*ProductCache)(nil)

func NewProductCache(rdb goredis.Cmdable, products domain.ProductRepository, memTTL time.Duration, m *metrics.CacheMetrics) *ProductCache {
	return &ProductCache{
		rdb:      rdb,
		products: products,
		mem:      newMemoryCache[domain.Product](memTTL),
		metrics:  m,
	}
}

// StartEvictionTimer runs a periodic goroutine that evicts expired in-memory cache entries.
// Returns a stop function that should be deferred.
func (c *ProductCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if evicted := c.mem.evictExpired(); evicted > 0 {
					slog.Debug("Evicted expired product cache entries", "count", evicted, "remaining", c.mem.size())
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}

func (c *ProductCache) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	if p, ok := c.mem.get(slug); ok {
		c.metrics.Hits.WithLabelValues("memory").Inc()
		return &p, nil
	}
	c.metrics.Misses.WithLabelValues("memory").Inc()

	v, err, _ := c.group.Do(slug, func() (any, error) {
		if p, ok := c.getCached(ctx, slug); ok {
			c.metrics.Hits.WithLabelValues("redis").Inc()
			c.mem.set(slug, p)
			return p, nil
		}
		c.metrics.Misses.WithLabelValues("redis").Inc()

		p, err := c.products.GetBySlug(ctx, slug)
		if err != nil {
			return domain.Product{}, err
		}
		c.mem.set(slug, *p)
		c.writeCache(ctx, slug, *p)
		return *p, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("product lookup by slug failed: %w", err)
	}

	p := v.(domain.Product)
	return &p, nil
}

// Invalidate evicts slugs from memory and Redis on this instance. Other
// instances learn about it through CatalogInvalidation.
func (c *ProductCache) Invalidate(ctx context.Context, slugs ...string) error {
	if len(slugs) == 0 {
		return nil
	}
	c.evictLocal(slugs...)

	keys := make([]string, len(slugs))
	for i, s := range slugs {
		keys[i] = productCacheKey(s)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate product cache: %w", err)
	}
	return nil
}

func (c *ProductCache) evictLocal(slugs ...string) {
	for _, s := range slugs {
		c.mem.invalidate(s)
		c.group.Forget(s)
	}
}

func (c *ProductCache) writeCache(ctx context.Context, slug string, p domain.Product) {
	encoded, err := json.Marshal(p)
	if err != nil {
		slog.Warn("Failed to marshal product for Redis cache", "slug", slug, "error", err)
		return
	}

	if err := c.rdb.Set(ctx, productCacheKey(slug), encoded, productCacheTTL).Err(); err != nil {
		slog.Warn("Failed to populate Redis product cache", "slug", slug, "error", err)
	}
}

func (c *ProductCache) getCached(ctx context.Context, slug string) (domain.Product, bool) {
	data, err := c.rdb.Get(ctx, productCacheKey(slug)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Warn("Redis product cache GET failed", "slug", slug, "error", err)
		}
		return domain.Product{}, false
	}

	var p domain.Product
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("Failed to unmarshal cached product", "slug", slug, "error", err)
		return domain.Product{}, false
	}
	return p, true
}

func productCacheKey(slug string) string {
	return "product_cache:" + slug
}

// memoryCache is an in-memory L1 cache with TTL-based expiry.
type memoryCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*memoryCacheEntry[V]
	ttl     time.Duration
}

type memoryCacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func newMemoryCache[V any](ttl time.Duration) *memoryCache[V] {
	return &memoryCache[V]{
		entries: make(map[string]*memoryCacheEntry[V]),
		ttl:     ttl,
	}
}

func (c *memoryCache[V]) get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return zero, false
	}
	return entry.value, true
}

func (c *memoryCache[V]) set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &memoryCacheEntry[V]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *memoryCache[V]) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache[V]) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memoryCache[V]) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	evicted := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const catalogInvalidationChannel = "catalog:invalidate"

// CatalogInvalidation broadcasts product cache evictions to every instance.
// It wraps a ProductCache so callers invalidate through one domain.ProductCache.
type CatalogInvalidation struct {
	rdb     *goredis.Client
	cache   *ProductCache
	metrics *metrics.CacheMetrics
}

var _ domain.ProductCache = (*CatalogInvalidation)(nil)

func NewCatalogInvalidation(rdb *goredis.Client, cache *ProductCache, m *metrics.CacheMetrics) *CatalogInvalidation {
	return &CatalogInvalidation{rdb: rdb, cache: cache, metrics: m}
}

func (s *CatalogInvalidation) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	return s.cache.GetBySlug(ctx, slug)
}

// Invalidate evicts locally and in Redis, then tells the other instances.
func (s *CatalogInvalidation) Invalidate(ctx context.Context, slugs ...string) error {
	if len(slugs) == 0 {
		return nil
	}
	if err := s.cache.Invalidate(ctx, slugs...); err != nil {
		return err
	}
	s.metrics.Invalidations.WithLabelValues("local").Add(float64(len(slugs)))

	if err := s.rdb.Publish(ctx, catalogInvalidationChannel, strings.Join(slugs, ",")).Err(); err != nil {
		return fmt.Errorf("failed to publish catalog invalidation: %w", err)
	}
	return nil
}

// Start blocks, evicting announced slugs from the local memory layer until
// ctx is cancelled. ready, when non-nil, is closed once subscribed.
func (s *CatalogInvalidation) Start(ctx context.Context, ready chan<- struct{}) error {
	pubsub := s.rdb.Subscribe(ctx, catalogInvalidationChannel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to catalog invalidations: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handleInvalidation(msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *CatalogInvalidation) handleInvalidation(payload string) {
	var slugs []string
	for _, slug := range strings.Split(payload, ",") {
		if slug = strings.TrimSpace(slug); slug != "" {
			slugs = append(slugs, slug)
		}
	}
	if len(slugs) == 0 {
		slog.Warn("Empty catalog invalidation message")
		return
	}

	s.cache.evictLocal(slugs...)
	s.metrics.Invalidations.WithLabelValues("pubsub").Add(float64(len(slugs)))
	slog.Debug("Product cache invalidated via pub/sub", "slugs", slugs)
}

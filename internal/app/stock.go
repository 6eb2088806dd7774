package app

import (
	"context"
	"log/slog"
	"slices"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/google/uuid"
)

// stockCache evicts cached product pages after orders move stock. A nil
// cache disables it.
type stockCache struct {
	products domain.ProductRepository
	cache    domain.ProductCache
}

func (c stockCache) invalidateItems(ctx context.Context, items []domain.OrderItem) {
	if c.cache == nil || c.products == nil || len(items) == 0 {
		return
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		if !slices.Contains(ids, it.ProductID) {
			ids = append(ids, it.ProductID)
		}
	}
	products, err := c.products.GetMany(ctx, ids)
	if err != nil {
		slog.WarnContext(ctx, "Failed to resolve products for cache invalidation", "error", err)
		return
	}
	slugs := make([]string, 0, len(products))
	for _, p := range products {
		slugs = append(slugs, p.Slug)
	}
	c.invalidate(ctx, slugs...)
}

func (c stockCache) invalidate(ctx context.Context, slugs ...string) {
	if c.cache == nil || len(slugs) == 0 {
		return
	}
	if err := c.cache.Invalidate(ctx, slugs...); err != nil {
		slog.WarnContext(ctx, "Failed to invalidate product cache", "slugs", slugs, "error", err)
	}
}

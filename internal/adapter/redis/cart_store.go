package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// CartStore keeps each cart as a hash of product id to quantity. Every write
// refreshes the TTL so active carts never expire.
type CartStore struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

var _ domain.CartStore = (*CartStore)(nil)

func NewCartStore(rdb goredis.Cmdable, ttl time.Duration) *CartStore {
	return &CartStore{rdb: rdb, ttl: ttl}
}

func cartKey(cartID uuid.UUID) string {
	return "cart:" + cartID.String()
}

func (s *CartStore) Items(ctx context.Context, cartID uuid.UUID) (map[uuid.UUID]int, error) {
	raw, err := s.rdb.HGetAll(ctx, cartKey(cartID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}

	items := make(map[uuid.UUID]int, len(raw))
	for field, value := range raw {
		productID, err := uuid.Parse(field)
		if err != nil {
			slog.Warn("Dropping malformed cart field", "cart_id", cartID.String(), "field", field)
			continue
		}
		qty, err := strconv.Atoi(value)
		if err != nil || qty <= 0 {
			continue
		}
		items[productID] = qty
	}
	return items, nil
}

func (s *CartStore) SetQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int) error {
	key := cartKey(cartID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if qty <= 0 {
			pipe.HDel(ctx, key, productID.String())
		} else {
			pipe.HSet(ctx, key, productID.String(), qty)
		}
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	return nil
}

func (s *CartStore) Clear(ctx context.Context, cartID uuid.UUID) error {
	if err := s.rdb.Del(ctx, cartKey(cartID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

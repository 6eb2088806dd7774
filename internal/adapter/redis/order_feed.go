package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const orderEventsChannel = "orders:events"

// OrderFeed fans order events out to every instance so each one can push
// them to its own connected back-office clients.
type OrderFeed struct {
	rdb *goredis.Client
}

var _ domain.OrderEventPublisher = (*OrderFeed)(nil)

func NewOrderFeed(rdb *goredis.Client) *OrderFeed {
	return &OrderFeed{rdb: rdb}
}

func (f *OrderFeed) PublishOrderEvent(ctx context.Context, e domain.OrderEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}
	if err := f.rdb.Publish(ctx, orderEventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish order event: %w", err)
	}
	return nil
}

// Subscribe blocks, handing each received event to handle until ctx is
// cancelled. The ready channel, when non-nil, is closed once the
// subscription is confirmed.
func (f *OrderFeed) Subscribe(ctx context.Context, ready chan<- struct{}, handle func(domain.OrderEvent)) error {
	pubsub := f.rdb.Subscribe(ctx, orderEventsChannel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to order events: %w", err)
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
			var e domain.OrderEvent
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				slog.Warn("Dropping malformed order event", "error", err)
				continue
			}
			handle(e)
		case <-ctx.Done():
			return nil
		}
	}
}

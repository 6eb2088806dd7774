package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/breaker"
	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
)

var errBreakerOpen = fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)

// CircuitBreakerHook fails Redis calls fast while Redis is unhealthy. Every
// caller in this package already treats Redis errors as a cache miss or a
// retryable failure, so an open breaker degrades to the database path.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook opens after 60% failures over at least 5 calls in a
// 10s window and probes again after 30s.
func NewCircuitBreakerHook(m *metrics.BreakerMetrics) *CircuitBreakerHook {
	return &CircuitBreakerHook{cb: breaker.New("redis", breaker.Settings{
		FailureRate:   0.6,
		MinExecutions: 5,
		Window:        10 * time.Second,
		Delay:         30 * time.Second,
	}, m)}
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, errBreakerOpen
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, err
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			cmd.SetErr(errBreakerOpen)
			return errBreakerOpen
		}

		err := next(ctx, cmd)
		h.record(err)
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			for _, cmd := range cmds {
				cmd.SetErr(errBreakerOpen)
			}
			return errBreakerOpen
		}

		err := next(ctx, cmds)
		h.record(err)
		return err
	}
}

// record ignores redis.Nil, which is a successful miss.
func (h *CircuitBreakerHook) record(err error) {
	if err != nil && !errors.Is(err, goredis.Nil) {
		h.cb.RecordError(err)
		return
	}
	h.cb.RecordSuccess()
}

func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}

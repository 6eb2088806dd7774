package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerHook_OpensAfterFailures(t *testing.T) {
	m := metrics.NewBreakerMetrics(prometheus.NewRegistry())
	hook := NewCircuitBreakerHook(m)
	ctx := context.Background()

	failing := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		return errors.New("connection refused")
	})
	for range 5 {
		_ = failing(ctx, goredis.NewStringCmd(ctx, "get", "k"))
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())

	called := false
	guarded := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		called = true
		return nil
	})
	cmd := goredis.NewStringCmd(ctx, "get", "k")
	err := guarded(ctx, cmd)

	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.ErrorIs(t, cmd.Err(), circuitbreaker.ErrOpen)
	assert.False(t, called, "open breaker must not reach redis")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.State.WithLabelValues("redis")))
}

func TestCircuitBreakerHook_NilIsSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	miss := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	for range 10 {
		_ = miss(ctx, goredis.NewStringCmd(ctx, "get", "k"))
	}

	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

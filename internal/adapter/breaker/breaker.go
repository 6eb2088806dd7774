// Package breaker builds failure-rate circuit breakers that report their
// state to logs and Prometheus.
package breaker

import (
	"log/slog"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

// Settings opens the breaker when FailureRate of at least MinExecutions
// calls within Window fail, and half-opens it after Delay.
type Settings struct {
	FailureRate   float64
	MinExecutions uint
	Window        time.Duration
	Delay         time.Duration
}

// New returns a breaker for component. m may be nil.
func New(component string, s Settings, m *metrics.BreakerMetrics) circuitbreaker.CircuitBreaker[any] {
	return circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(s.FailureRate, s.MinExecutions, s.Window).
		WithDelay(s.Delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", component,
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if m != nil {
				m.StateChanges.WithLabelValues(component, e.NewState.String()).Inc()
				m.State.WithLabelValues(component).Set(StateValue(e.NewState))
			}
		}).
		Build()
}

// StateValue encodes state for the state gauge: 0 closed, 1 half-open, 2 open.
func StateValue(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// StoreMetrics tracks business events: orders, coupons, payments and jobs.
type StoreMetrics struct {
	OrdersPlaced      *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
	CouponRedemptions prometheus.Counter
	CouponRejections  *prometheus.CounterVec
	PaymentCalls      *prometheus.CounterVec
	JobRuns           *prometheus.CounterVec
	JobDuration       *prometheus.HistogramVec
}

func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "placed_total",
			Help:      "Total number of orders placed, by payment method.",
		}, []string{"payment_method"}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "status_transitions_total",
			Help:      "Total number of order status transitions.",
		}, []string{"from", "to"}),
		CouponRedemptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coupons",
			Name:      "redemptions_total",
			Help:      "Total number of coupons redeemed on placed orders.",
		}),
		CouponRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coupons",
			Name:      "rejections_total",
			Help:      "Total number of rejected coupon validations, by reason.",
		}, []string{"reason"}),
		PaymentCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "gateway_calls_total",
			Help:      "Total number of payment gateway calls, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Total number of scheduled job runs, by job and outcome.",
		}, []string{"job", "outcome"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "run_duration_seconds",
			Help:      "Duration of scheduled job runs in seconds.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		}, []string{"job"}),
	}

	reg.MustRegister(m.OrdersPlaced, m.StatusTransitions, m.CouponRedemptions,
		m.CouponRejections, m.PaymentCalls, m.JobRuns, m.JobDuration)
	return m
}

package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

// HTTPMetrics tracks request latency and volume per route template. The area
// label splits storefront traffic from account and back-office traffic.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	labels := []string{"method", "area", "route", "status_code"}
	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, labels),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, labels),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being processed.",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge)
	return m
}

// Middleware records every request except scrapes, health probes and the
// long-lived live order stream. Requests that match no route share the
// "unmatched" route label.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if skipRoute(route) {
				return next(c)
			}
			if route == "" || route == "/*" {
				route = unmatchedRoute
			}

			m.InFlightGauge.Inc()
			defer m.InFlightGauge.Dec()

			method := c.Request().Method
			area := routeArea(route)
			var status string
			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
				m.RequestDuration.WithLabelValues(method, area, route, status).Observe(v)
				m.RequestsTotal.WithLabelValues(method, area, route, status).Inc()
			}))

			err := next(c)
			status = strconv.Itoa(responseStatus(c, err))
			timer.ObserveDuration()
			return err
		}
	}
}

func skipRoute(route string) bool {
	return route == "/metrics" ||
		strings.HasPrefix(route, "/health/") ||
		strings.HasSuffix(route, "/orders/live")
}

func routeArea(route string) string {
	switch {
	case route == unmatchedRoute:
		return unmatchedRoute
	case strings.HasPrefix(route, "/api/admin"):
		return "admin"
	case strings.HasPrefix(route, "/api/account"):
		return "account"
	case strings.HasPrefix(route, "/api/auth"):
		return "auth"
	case strings.HasPrefix(route, "/media"):
		return "media"
	default:
		return "storefront"
	}
}

// responseStatus prefers the committed status. An *echo.HTTPError that has
// not been written yet reports its own code.
func responseStatus(c echo.Context, err error) int {
	if c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	if err != nil {
		return http.StatusInternalServerError
	}
	return c.Response().Status
}

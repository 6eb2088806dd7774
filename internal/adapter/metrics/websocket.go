package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for the live order feed connections.
type WebSocketMetrics struct {
	ActiveConnections   prometheus.Gauge
	MessagesPublished   prometheus.Counter
	SlowClientsEvicted  prometheus.Counter
	ConnectionsRejected prometheus.Counter
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active WebSocket connections.",
		}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_published_total",
			Help:      "Total number of WebSocket messages published.",
		}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_clients_evicted_total",
			Help:      "Total number of clients disconnected for not keeping up.",
		}),
		ConnectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_rejected_total",
			Help:      "Total number of connections refused at the client cap.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesPublished, m.SlowClientsEvicted, m.ConnectionsRejected)
	return m
}

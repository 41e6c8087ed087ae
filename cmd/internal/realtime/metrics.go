package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the gateway instruments. A nil *Metrics records nothing.
type Metrics struct {
	connections prometheus.Gauge
	envelopes   *prometheus.CounterVec
	rejects     *prometheus.CounterVec
}

// NewMetrics creates the gateway metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "campus",
			Subsystem: "ws",
			Name:      "connections_open",
			Help:      "Accepted websocket connections that have not shut down.",
		}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus",
			Subsystem: "ws",
			Name:      "envelopes_received_total",
			Help:      "Valid inbound envelopes by type.",
		}, []string{"type"}),
		rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus",
			Subsystem: "ws",
			Name:      "rejects_total",
			Help:      "Rejected connections and envelopes by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.envelopes, m.rejects)
	}
	return m
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) envelope(typ string) {
	if m != nil {
		m.envelopes.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) reject(reason string) {
	if m != nil {
		m.rejects.WithLabelValues(reason).Inc()
	}
}

package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the messaging counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	conversationsCreated prometheus.Counter
	conversationsReused  prometheus.Counter
	messagesSent         prometheus.Counter
	sendFailures         prometheus.Counter
	unreadRaised         prometheus.Counter
	subscriptionErrors   *prometheus.CounterVec
	sessions             prometheus.Gauge
}

// NewMetrics creates the messaging metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		conversationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "campus",
			Subsystem: "messaging",
			Name:      "conversations_created_total",
			Help:      "Conversations created by find-or-create.",
		}),
		conversationsReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "campus",
			Subsystem: "messaging",
			Name:      "conversations_reused_total",
			Help:      "Find-or-create calls that returned an existing conversation.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "campus",
			Subsystem: "messaging",
			Name:      "messages_sent_total",
			Help:      "Messages persisted.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "campus",
			Subsystem: "messaging",
			Name:      "send_failures_total",
			Help:      "Sends abandoned because of a store failure.",
		}),
		unreadRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "campus",
			Subsystem: "messaging",
			Name:      "unread_raised_total",
			Help:      "Idle to Unread transitions of session unread flags.",
		}),
		subscriptionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus",
			Subsystem: "messaging",
			Name:      "subscription_errors_total",
			Help:      "Live subscription errors by panel.",
		}, []string{"panel"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "campus",
			Subsystem: "messaging",
			Name:      "sessions_active",
			Help:      "Started sessions that have not been closed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.conversationsCreated,
			m.conversationsReused,
			m.messagesSent,
			m.sendFailures,
			m.unreadRaised,
			m.subscriptionErrors,
			m.sessions,
		)
	}
	return m
}

func (m *Metrics) conversationCreated(created bool) {
	if m == nil {
		return
	}
	if created {
		m.conversationsCreated.Inc()
	} else {
		m.conversationsReused.Inc()
	}
}

func (m *Metrics) messageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *Metrics) sendFailed() {
	if m != nil {
		m.sendFailures.Inc()
	}
}

func (m *Metrics) unreadRaisedInc() {
	if m != nil {
		m.unreadRaised.Inc()
	}
}

func (m *Metrics) subscriptionError(panel Panel) {
	if m != nil {
		m.subscriptionErrors.WithLabelValues(string(panel)).Inc()
	}
}

func (m *Metrics) sessionDelta(d float64) {
	if m != nil {
		m.sessions.Add(d)
	}
}

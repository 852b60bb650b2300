package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the chat collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent        *prometheus.CounterVec
	pushes              *prometheus.CounterVec
	typingEvents        prometheus.Counter
	conversationDeletes prometheus.Counter
	hiddenMessages      prometheus.Counter
	rateLimited         prometheus.Counter
	connections         prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmchat_messages_sent_total",
			Help: "Messages persisted, by message type.",
		}, []string{"type"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmchat_pushes_total",
			Help: "Live pushes attempted, by result.",
		}, []string{"result"}),
		typingEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_typing_events_total",
			Help: "Typing events broadcast.",
		}),
		conversationDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_conversation_deletes_total",
			Help: "Per-user conversation deletes.",
		}),
		hiddenMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_hidden_messages_total",
			Help: "Visibility markers created by conversation deletes.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_rate_limited_total",
			Help: "Requests rejected by the per-user rate limiter.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmchat_ws_connections",
			Help: "Open websocket connections.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesSent,
		m.pushes,
		m.typingEvents,
		m.conversationDeletes,
		m.hiddenMessages,
		m.rateLimited,
		m.connections,
	)
	return m
}

// TrackPresence exposes the number of users the presence tracker remembers
func (m *Metrics) TrackPresence(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "dmchat_presence_tracked_users",
			Help: "Users with a recorded heartbeat.",
		},
		func() float64 { return float64(count()) },
	))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MessageSent(msgType string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(msgType).Inc()
}

// Push records the outcome of one live push: "delivered" or "dropped"
func (m *Metrics) Push(result string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(result).Inc()
}

func (m *Metrics) Typing() {
	if m == nil {
		return
	}
	m.typingEvents.Inc()
}

func (m *Metrics) ConversationDeleted(hidden int64) {
	if m == nil {
		return
	}
	m.conversationDeletes.Inc()
	m.hiddenMessages.Add(float64(hidden))
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

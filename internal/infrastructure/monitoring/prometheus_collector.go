package monitoring

import (
	"peermeet/internal/core/protocol"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports session coordination metrics. It satisfies
// ports.MetricsRecorder.
type PrometheusCollector struct {
	participantsWaiting  prometheus.Gauge
	participantsAdmitted prometheus.Gauge
	callsActive          prometheus.Gauge

	joinRequestsTotal *prometheus.CounterVec
	messagesRelayed   *prometheus.CounterVec
	chatMessagesTotal prometheus.Counter

	callSetupDuration prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		participantsWaiting: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "peermeet_participants_waiting",
			Help: "Number of peers currently in the waiting room",
		}),

		participantsAdmitted: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "peermeet_participants_admitted",
			Help: "Number of admitted participants",
		}),

		callsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "peermeet_media_calls_active",
			Help: "Number of established media calls",
		}),

		joinRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peermeet_join_requests_total",
			Help: "Join requests by decision outcome",
		}, []string{"decision"}),

		messagesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peermeet_messages_relayed_total",
			Help: "Control messages fanned out through the relay, by type",
		}, []string{"type"}),

		chatMessagesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peermeet_chat_messages_total",
			Help: "Chat messages handled locally",
		}),

		callSetupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "peermeet_call_setup_duration_seconds",
			Help:    "Time from admission to an established media call",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

func (c *PrometheusCollector) JoinRequest(decision string) {
	c.joinRequestsTotal.WithLabelValues(decision).Inc()
}

func (c *PrometheusCollector) MembershipCounts(waiting, admitted int) {
	c.participantsWaiting.Set(float64(waiting))
	c.participantsAdmitted.Set(float64(admitted))
}

func (c *PrometheusCollector) MessageRelayed(t protocol.MessageType, fanout int) {
	c.messagesRelayed.WithLabelValues(string(t)).Add(float64(fanout))
}

func (c *PrometheusCollector) ChatMessage() {
	c.chatMessagesTotal.Inc()
}

func (c *PrometheusCollector) CallEstablished(seconds float64) {
	c.callSetupDuration.Observe(seconds)
}

func (c *PrometheusCollector) CallsActive(n int) {
	c.callsActive.Set(float64(n))
}

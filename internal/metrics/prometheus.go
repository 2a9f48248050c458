package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the RTMS service
type Metrics struct {
	registry *prometheus.Registry

	// Token metrics
	TokenRequests *prometheus.CounterVec

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsEnded   *prometheus.CounterVec

	// Dispatch metrics
	MessagesReceived *prometheus.CounterVec
	DecodeFailures   prometheus.Counter
	SinkFailures     prometheus.Counter
	SinkDuration     prometheus.Histogram

	// Webhook metrics
	WebhookEvents *prometheus.CounterVec
}

// NewMetrics creates all metrics on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TokenRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtms_token_requests_total",
			Help: "Token exchange requests by token kind and result",
		}, []string{"kind", "result"}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtms_active_sessions",
			Help: "Current number of streaming sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtms_sessions_started_total",
			Help: "Total number of sessions that reached streaming",
		}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtms_sessions_ended_total",
			Help: "Total number of sessions ended, by final state",
		}, []string{"state"}),

		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtms_messages_received_total",
			Help: "Inbound stream messages by kind",
		}, []string{"kind"}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtms_decode_failures_total",
			Help: "Inbound messages that could not be decoded",
		}),
		SinkFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtms_sink_failures_total",
			Help: "Video frame sink invocations that failed",
		}),
		SinkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rtms_sink_duration_seconds",
			Help:    "Time spent in the video frame sink",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),

		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtms_webhook_events_total",
			Help: "Webhook notifications by event and outcome",
		}, []string{"event", "status"}),
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTokenRequest counts a token exchange
func (m *Metrics) RecordTokenRequest(kind string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.TokenRequests.WithLabelValues(kind, result).Inc()
}

// RecordSessionStarted marks a session entering streaming
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionEnded marks a streaming session leaving the loop
func (m *Metrics) RecordSessionEnded(state string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsEnded.WithLabelValues(state).Inc()
}

// RecordMessage counts a dispatched message
func (m *Metrics) RecordMessage(kind string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(kind).Inc()
}

// RecordDecodeFailure counts an undecodable message
func (m *Metrics) RecordDecodeFailure() {
	if m == nil {
		return
	}
	m.DecodeFailures.Inc()
}

// RecordSink observes one sink invocation
func (m *Metrics) RecordSink(durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.SinkDuration.Observe(durationSeconds)
	if err != nil {
		m.SinkFailures.Inc()
	}
}

// RecordWebhook counts a webhook notification
func (m *Metrics) RecordWebhook(event, status string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(event, status).Inc()
}

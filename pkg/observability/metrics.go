package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal's Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics: one counter per (surface, decision) pair so
	// denial spikes on any enforcement surface are visible independently
	AuthzDecisionsTotal *prometheus.CounterVec

	// Identity lifecycle metrics
	WebhookEventsTotal  *prometheus.CounterVec
	MirroredUsersTotal  prometheus.Gauge
	SessionCacheHits    prometheus.Counter
	SessionCacheMisses  prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_authz_decisions_total",
				Help: "Authorization decisions by enforcement surface and outcome",
			},
			[]string{"surface", "decision"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_webhook_events_total",
				Help: "Identity lifecycle webhook deliveries by event type and result",
			},
			[]string{"type", "result"},
		),
		MirroredUsersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "portal_mirrored_users_total",
				Help: "Number of user records mirrored from the identity provider",
			},
		),
		SessionCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_session_cache_hits_total",
				Help: "Session principal cache hits",
			},
		),
		SessionCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_session_cache_misses_total",
				Help: "Session principal cache misses",
			},
		),
		registry: registry,
	}

	if registry != nil {
		registry.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.AuthzDecisionsTotal,
			m.WebhookEventsTotal,
			m.MirroredUsersTotal,
			m.SessionCacheHits,
			m.SessionCacheMisses,
		)
	}

	return m
}

// ObserveDecision records an authorization decision for a surface
func (m *Metrics) ObserveDecision(surface, decision string) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(surface, decision).Inc()
}

// ObserveWebhookEvent records a lifecycle webhook delivery result
func (m *Metrics) ObserveWebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

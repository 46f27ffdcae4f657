package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event outcomes.
const (
	OutcomeHandled   = "handled"
	OutcomeUnhandled = "unhandled"
	OutcomeFailed    = "failed"
)

// Rejection reasons.
const (
	ReasonSignature    = "signature"
	ReasonBodyTooLarge = "body_too_large"
	ReasonMalformed    = "malformed"
)

// OtherEventType labels event types without a registered handler, which keeps
// label cardinality bounded by the handler set.
const OtherEventType = "other"

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	WebhookEventsTotal         *prometheus.CounterVec
	WebhookRejectionsTotal     *prometheus.CounterVec
	WebhookVerificationSkipped prometheus.Counter
}

// New creates the metrics and registers them, along with the Go and process
// collectors, on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinhook_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinhook_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinhook_webhook_events_total",
				Help: "Webhook events accepted for dispatch",
			},
			[]string{"event_type", "outcome"},
		),
		WebhookRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinhook_webhook_rejections_total",
				Help: "Webhook requests rejected before dispatch",
			},
			[]string{"reason"},
		),
		WebhookVerificationSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coinhook_webhook_verification_skipped_total",
				Help: "Webhook requests accepted without signature verification",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebhookEventsTotal,
		m.WebhookRejectionsTotal,
		m.WebhookVerificationSkipped,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveEvent(eventType, outcome string) {
	m.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) ObserveRejection(reason string) {
	m.WebhookRejectionsTotal.WithLabelValues(reason).Inc()
}

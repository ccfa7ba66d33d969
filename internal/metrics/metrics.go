// Package metrics exposes the bridge's Prometheus counters.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the bridge counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	events          *prometheus.CounterVec
	ticketsCreated  prometheus.Counter
	commentsMirror  *prometheus.CounterVec
	webhookRequests *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	defaultInst *Metrics
)

// Default returns the process-wide metrics registered on the default registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultInst = New(promauto.With(prometheus.DefaultRegisterer))
	})
	return defaultInst
}

// New registers the bridge counters through f. Tests pass a factory over a
// private registry.
func New(f promauto.Factory) *Metrics {
	return &Metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zenslack",
			Name:      "events_total",
			Help:      "Inbound events by kind (chat, ticket) and outcome (handled, ignored, failed, disabled)",
		}, []string{"kind", "outcome"}),
		ticketsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "zenslack",
			Name:      "tickets_created_total",
			Help:      "Tickets opened from Slack root messages",
		}),
		commentsMirror: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zenslack",
			Name:      "comments_mirrored_total",
			Help:      "Messages copied between Slack and Zendesk, labeled by direction",
		}, []string{"direction"}),
		webhookRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zenslack",
			Name:      "webhook_requests_total",
			Help:      "Webhook requests by source and HTTP status",
		}, []string{"source", "status"}),
	}
}

// Event counts one processed inbound event.
func (m *Metrics) Event(kind, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, outcome).Inc()
}

// TicketCreated counts one ticket opened from Slack.
func (m *Metrics) TicketCreated() {
	if m == nil {
		return
	}
	m.ticketsCreated.Inc()
}

// Mirrored counts n messages copied in direction ("to_zendesk" or "to_slack").
func (m *Metrics) Mirrored(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.commentsMirror.WithLabelValues(direction).Add(float64(n))
}

// Webhook counts one webhook request.
func (m *Metrics) Webhook(source string, status int) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(source, statusLabel(status)).Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

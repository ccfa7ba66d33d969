package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(promauto.With(reg))

	m.Event("chat", "handled")
	m.Event("chat", "handled")
	m.Event("ticket", "ignored")
	m.TicketCreated()
	m.Mirrored("to_slack", 3)
	m.Mirrored("to_slack", 0)
	m.Webhook("slack", 200)
	m.Webhook("slack", 403)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("chat", "handled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("ticket", "ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticketsCreated))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.commentsMirror.WithLabelValues("to_slack")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookRequests.WithLabelValues("slack", "4xx")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Event("chat", "handled")
		m.TicketCreated()
		m.Mirrored("to_zendesk", 1)
		m.Webhook("zendesk", 200)
	})
}

package output

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/internal/ports"
)

var _ ports.EngineObserver = (*PrometheusMetrics)(nil)

func TestPrometheusMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg, "", MetricsSources{
		BlockedAddresses: func() int { return 3 },
		StoredEvents:     func() int { return 42 },
	})

	m.ObserveDecision(domain.VerdictAccepted, 0.001)
	m.ObserveDecision(domain.VerdictAccepted, 0.002)
	m.ObserveDecision(domain.VerdictRejected, 0.0001)
	m.ObserveBlock(domain.BlockEntry{})
	m.ObserveUnblock()
	m.ObserveReport("generated")
	m.ObserveEnrichment("error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsIngested.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsIngested.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.blocks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unblocks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reports.WithLabelValues("generated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.enrichment.WithLabelValues("error")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil).WithContext(context.Background()))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "siem_blocked_addresses 3")
	assert.Contains(t, string(body), "siem_stored_events 42")
	assert.Contains(t, string(body), "siem_report_queue_length 0")
}

func TestPrometheusMetrics_IsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusMetrics(prometheus.NewRegistry(), "", MetricsSources{})
		NewPrometheusMetrics(prometheus.NewRegistry(), "", MetricsSources{})
	})
}

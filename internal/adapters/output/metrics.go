package output

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Reddy-45/siem/internal/domain"
)

// Gauges are sampled on scrape from these providers.
type MetricsSources struct {
	BlockedAddresses func() int
	StoredEvents     func() int
	ReportQueue      func() int
}

// PrometheusMetrics exports engine activity. It implements
// ports.EngineObserver and registers on the given registerer, so tests can
// use a fresh prometheus.NewRegistry() each.
type PrometheusMetrics struct {
	eventsIngested *prometheus.CounterVec
	blocks         prometheus.Counter
	unblocks       prometheus.Counter
	reports        *prometheus.CounterVec
	enrichment     *prometheus.CounterVec
	ingestDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewPrometheusMetrics registers the siem_* collectors.
//
// Parameters:
//   - reg: Registerer and Gatherer (nil uses the default registry)
//   - namespace: Metric prefix (default: "siem")
//   - sources: Gauge providers; nil functions report 0
func NewPrometheusMetrics(reg *prometheus.Registry, namespace string, sources MetricsSources) *PrometheusMetrics {
	if namespace == "" {
		namespace = "siem"
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	m := &PrometheusMetrics{gatherer: gatherer}

	m.eventsIngested = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_ingested_total",
		Help:      "Ingestion decisions by verdict",
	}, []string{"verdict"})

	m.blocks = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_total",
		Help:      "Source addresses blocked by the brute-force detector",
	})

	m.unblocks = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unblocks_total",
		Help:      "Manual unblocks",
	})

	m.reports = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_total",
		Help:      "Incident report pipeline results",
	}, []string{"result"})

	m.enrichment = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichment_lookups_total",
		Help:      "Enrichment lookups by result",
	}, []string{"result"})

	m.ingestDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_duration_seconds",
		Help:      "Time spent inside the ingestion boundary",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
	})

	gauge := func(name, help string, fn func() int) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 {
			if fn == nil {
				return 0
			}
			return float64(fn())
		})
	}
	gauge("blocked_addresses", "Currently blocked source addresses", sources.BlockedAddresses)
	gauge("stored_events", "Events held in the event store", sources.StoredEvents)
	gauge("report_queue_length", "Report jobs waiting for a worker", sources.ReportQueue)

	return m
}

func (m *PrometheusMetrics) ObserveDecision(verdict domain.Verdict, seconds float64) {
	m.eventsIngested.WithLabelValues(string(verdict)).Inc()
	m.ingestDuration.Observe(seconds)
}

func (m *PrometheusMetrics) ObserveBlock(entry domain.BlockEntry) {
	m.blocks.Inc()
}

func (m *PrometheusMetrics) ObserveUnblock() {
	m.unblocks.Inc()
}

func (m *PrometheusMetrics) ObserveEnrichment(result string) {
	m.enrichment.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) ObserveReport(result string) {
	m.reports.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

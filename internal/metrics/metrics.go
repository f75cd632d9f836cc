package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GatewayMetrics exposes counters/histograms for masking flows. Labels carry
// categories and backends only, never detected values.
type GatewayMetrics struct {
	masksTotal       *prometheus.CounterVec
	placeholders     *prometheus.CounterVec
	maskLatency      *prometheus.HistogramVec
	unmasksTotal     prometheus.Counter
	completionsTotal *prometheus.CounterVec
	rateLimited      prometheus.Counter
	gatherer         prometheus.Gatherer
}

func NewGatewayMetrics(reg *prometheus.Registry) *GatewayMetrics {
	m := &GatewayMetrics{
		masksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "privacy_gateway",
			Subsystem: "mask",
			Name:      "requests_total",
			Help:      "Total masking requests by backend and outcome",
		}, []string{"backend", "status"}),
		placeholders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "privacy_gateway",
			Subsystem: "mask",
			Name:      "placeholders_total",
			Help:      "Placeholders assigned by category",
		}, []string{"category"}),
		maskLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "privacy_gateway",
			Subsystem: "mask",
			Name:      "latency_seconds",
			Help:      "Latency of detection and masking",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"backend"}),
		unmasksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "privacy_gateway",
			Subsystem: "unmask",
			Name:      "requests_total",
			Help:      "Total unmask requests",
		}),
		completionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "privacy_gateway",
			Subsystem: "completion",
			Name:      "requests_total",
			Help:      "Total calls to the external completion service",
		}, []string{"status"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "privacy_gateway",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	m.gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer = reg
		m.gatherer = reg
	}
	registerer.MustRegister(m.masksTotal, m.placeholders, m.maskLatency, m.unmasksTotal, m.completionsTotal, m.rateLimited)
	return m
}

func (m *GatewayMetrics) ObserveMask(backend, status string, seconds float64) {
	if m == nil {
		return
	}
	m.masksTotal.WithLabelValues(backend, status).Inc()
	m.maskLatency.WithLabelValues(backend).Observe(seconds)
}

func (m *GatewayMetrics) ObservePlaceholders(counts map[string]int) {
	if m == nil {
		return
	}
	for category, n := range counts {
		if n > 0 {
			m.placeholders.WithLabelValues(category).Add(float64(n))
		}
	}
}

func (m *GatewayMetrics) ObserveUnmask() {
	if m == nil {
		return
	}
	m.unmasksTotal.Inc()
}

func (m *GatewayMetrics) ObserveCompletion(status string) {
	if m == nil {
		return
	}
	m.completionsTotal.WithLabelValues(status).Inc()
}

func (m *GatewayMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Handler serves the registry this instance was registered with
func (m *GatewayMetrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

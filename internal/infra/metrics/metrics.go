// Package metrics keeps per-engine statistics and HTTP API metrics on
// Prometheus collectors registered in a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TimeBuckets covers engine and request latencies from 50ms to 20s.
var TimeBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 20}

const (
	metricSent       = "metasearch_engine_requests_sent_total"
	metricSuccessful = "metasearch_engine_requests_successful_total"
	metricErrors     = "metasearch_engine_errors_total"
	metricSoftErrors = "metasearch_engine_soft_errors_total"
	metricResults    = "metasearch_engine_results_total"
	metricTimeTotal  = "metasearch_engine_time_total_seconds"
	metricTimeHTTP   = "metasearch_engine_time_http_seconds"
	metricScore      = "metasearch_engine_score_total"
)

// Metrics owns the registry and every collector the service exposes.
type Metrics struct {
	registry *prometheus.Registry

	Engines *EngineStats
	HTTP    *HTTPStats
}

// New creates the collectors in a fresh registry. withRuntime adds the Go
// runtime and process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return &Metrics{
		registry: reg,
		Engines:  newEngineStats(reg),
		HTTP:     newHTTPStats(reg),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// HTTPStats records API traffic.
type HTTPStats struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	rateLimitedTotal prometheus.Counter
}

func newHTTPStats(reg prometheus.Registerer) *HTTPStats {
	s := &HTTPStats{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metasearch_http_requests_total",
				Help: "HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metasearch_http_request_duration_seconds",
				Help:    "HTTP API request duration",
				Buckets: TimeBuckets,
			},
			[]string{"method", "path"},
		),
		rateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "metasearch_http_ratelimit_rejected_total",
				Help: "Requests rejected by the per-client rate limiter",
			},
		),
	}
	reg.MustRegister(s.requestsTotal, s.requestDuration, s.rateLimitedTotal)
	return s
}

// ObserveRequest records one served request. The status is reported by class.
func (s *HTTPStats) ObserveRequest(method, path string, status int, d time.Duration) {
	class := strconv.Itoa(status/100) + "xx"
	s.requestsTotal.WithLabelValues(method, path, class).Inc()
	s.requestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RateLimited counts a rejected request.
func (s *HTTPStats) RateLimited() { s.rateLimitedTotal.Inc() }

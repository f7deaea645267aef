// Package metrics exports the dashboard's internal counters in Prometheus
// format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one process. Methods are safe on a nil
// receiver so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	fetchDuration     prometheus.Histogram
	fetchErrors       prometheus.Counter
	events            *prometheus.CounterVec
	samples           *prometheus.GaugeVec
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrvdash_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hrvdash_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hrvdash_query_cache_hits_total",
			Help: "Total window query cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hrvdash_query_cache_misses_total",
			Help: "Total window query cache misses.",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hrvdash_feed_fetch_duration_seconds",
			Help:    "Histogram of backend feed request durations.",
			Buckets: prometheus.DefBuckets,
		}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hrvdash_feed_fetch_errors_total",
			Help: "Total failed backend feed requests.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrvdash_dashboard_events_total",
			Help: "Dashboard events by kind and outcome.",
		}, []string{"event", "outcome"}),
		samples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hrvdash_series_samples",
			Help: "Number of loaded samples per metric.",
		}, []string{"metric"}),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.cacheHits,
		m.cacheMisses,
		m.fetchDuration,
		m.fetchErrors,
		m.events,
		m.samples,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency of next under route
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// FetchCompleted records one backend request
func (m *Metrics) FetchCompleted(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(d.Seconds())
	if err != nil {
		m.fetchErrors.Inc()
	}
}

// DashboardEvent counts a reduced event; kind is "loaded", "duration" or "brush"
func (m *Metrics) DashboardEvent(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.events.WithLabelValues(kind, outcome).Inc()
}

// SeriesLoaded sets the sample gauge of metric
func (m *Metrics) SeriesLoaded(metric string, count int) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(metric).Set(float64(count))
}

package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/learnhub-api/internal/models"
)

// MetricsService owns a private Prometheus registry for HTTP, cache and job
// instrumentation, and keeps running totals for the admin snapshot.
type MetricsService struct {
	handler   http.Handler
	startedAt time.Time

	httpDuration *prometheus.HistogramVec
	httpTotal    *prometheus.CounterVec
	rateLimited  prometheus.Counter
	cacheOps     *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobTotal     *prometheus.CounterVec

	totals struct {
		requests     atomic.Uint64
		requestNanos atomic.Uint64
		cacheHits    atomic.Uint64
		cacheMisses  atomic.Uint64
		jobs         atomic.Uint64
		jobsFailed   atomic.Uint64
	}
}

// NewMetricsService registers the collectors on a fresh registry, so several
// instances can coexist in one process.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	m := &MetricsService{
		handler:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		startedAt: time.Now(),
	}

	m.httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	m.httpTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	m.rateLimited = factory.NewCounter(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})

	m.cacheOps = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cache_operation_seconds",
		Help:    "Latency of cache reads and writes",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	}, []string{"op"})
	m.cacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	}, m.hitRatio)

	m.jobDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of background job attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue", "type"})
	m.jobTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "Background job attempts by outcome",
	}, []string{"queue", "type", "outcome"})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 { return float64(runtime.NumGoroutine()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "process_uptime_seconds",
		Help: "Seconds since the metrics service was created",
	}, func() float64 { return time.Since(m.startedAt).Seconds() })

	return m
}

// Handler serves the registry in the Prometheus text format, or 503 on a nil service.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.httpTotal.WithLabelValues(method, path, code).Inc()
	m.totals.requests.Add(1)
	m.totals.requestNanos.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache read and whether it hit.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues("get").Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		m.totals.cacheHits.Add(1)
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
	m.totals.cacheMisses.Add(1)
}

// ObserveCacheWrite records a cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues("set").Observe(duration.Seconds())
}

// ObserveJob matches jobs.Observer and records each job attempt.
func (m *MetricsService) ObserveJob(queue, jobType string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		m.totals.jobsFailed.Add(1)
	}
	m.jobDuration.WithLabelValues(queue, jobType).Observe(duration.Seconds())
	m.jobTotal.WithLabelValues(queue, jobType, outcome).Inc()
	m.totals.jobs.Add(1)
}

// RecordRateLimited counts a rejected request.
func (m *MetricsService) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *MetricsService) hitRatio() float64 {
	hits := m.totals.cacheHits.Load()
	total := hits + m.totals.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Snapshot returns the running totals for the admin dashboard.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	now := time.Now().UTC()
	if m == nil {
		return models.SystemMetrics{Goroutines: runtime.NumGoroutine(), GeneratedAt: now}
	}
	snap := models.SystemMetrics{
		CacheHitRatio: m.hitRatio(),
		CacheHits:     m.totals.cacheHits.Load(),
		CacheMisses:   m.totals.cacheMisses.Load(),
		RequestsTotal: m.totals.requests.Load(),
		JobsProcessed: m.totals.jobs.Load(),
		JobsFailed:    m.totals.jobsFailed.Load(),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(m.startedAt).Seconds()),
		GeneratedAt:   now,
	}
	if snap.RequestsTotal > 0 {
		snap.AverageRequestDurationMs = float64(m.totals.requestNanos.Load()) / float64(snap.RequestsTotal) / float64(time.Millisecond)
	}
	return snap
}

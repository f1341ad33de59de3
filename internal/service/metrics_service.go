package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	reviewTotal     *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	subscriptions   prometheus.Gauge
	reconnects      prometheus.Counter
	sessions        prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	reviewCount          uint64
	reviewFailureCount   uint64
	reconnectCount       uint64
	subscriptionCount    int64
	sessionCount         int64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	reviewTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reviews_total",
		Help: "Review decisions by request kind, decision and outcome",
	}, []string{"kind", "decision", "outcome"})

	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "change_events_published_total",
		Help: "Change events published per table",
	}, []string{"table"})

	subscriptions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "change_event_subscriptions",
		Help: "Active change event subscriptions",
	})

	reconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "change_event_reconnects_total",
		Help: "Resubscriptions scheduled after channel errors",
	})

	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "console_sessions",
		Help: "Open reviewer console sessions",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		reviewTotal, eventsPublished, subscriptions, reconnects, sessions, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		reviewTotal:     reviewTotal,
		eventsPublished: eventsPublished,
		subscriptions:   subscriptions,
		reconnects:      reconnects,
		sessions:        sessions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordReview counts a review decision; kind is "curriculum" or "change".
func (m *MetricsService) RecordReview(kind, decision string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		atomic.AddUint64(&m.reviewFailureCount, 1)
	}
	m.reviewTotal.WithLabelValues(kind, decision, outcome).Inc()
	atomic.AddUint64(&m.reviewCount, 1)
}

// RecordEventPublished counts a published change event.
func (m *MetricsService) RecordEventPublished(table string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(table).Inc()
}

// AddSubscriptions adjusts the active subscription gauge by delta.
func (m *MetricsService) AddSubscriptions(delta int) {
	if m == nil {
		return
	}
	m.subscriptions.Add(float64(delta))
	atomic.AddInt64(&m.subscriptionCount, int64(delta))
}

// RecordReconnect counts a scheduled resubscription.
func (m *MetricsService) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
	atomic.AddUint64(&m.reconnectCount, 1)
}

// SetConsoleSessions records the number of open console sessions.
func (m *MetricsService) SetConsoleSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
	atomic.StoreInt64(&m.sessionCount, int64(n))
}

// Snapshot returns aggregated metrics suitable for the admin summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		ReviewsTotal:             atomic.LoadUint64(&m.reviewCount),
		ReviewFailures:           atomic.LoadUint64(&m.reviewFailureCount),
		ActiveSubscriptions:      atomic.LoadInt64(&m.subscriptionCount),
		Reconnects:               atomic.LoadUint64(&m.reconnectCount),
		ConsoleSessions:          atomic.LoadInt64(&m.sessionCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

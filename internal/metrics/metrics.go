// Package metrics exposes asset lifecycle, visitor and HTTP metrics to
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cms-go/internal/cms"
)

// Metrics holds every collector. It implements cms.Recorder.
type Metrics struct {
	assetsCreated *prometheus.CounterVec
	assetsFailed  *prometheus.CounterVec
	assetsDeleted *prometheus.CounterVec
	orphanedBlobs prometheus.Counter
	visitsCounted prometheus.Counter
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	subscriptions prometheus.GaugeFunc
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

var _ cms.Recorder = (*Metrics)(nil)

// New registers the collectors with reg. activeSubscriptions, when not nil,
// backs the sync-bus subscription gauge.
func New(reg prometheus.Registerer, activeSubscriptions func() int) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		assetsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_assets_created_total",
			Help: "Assets stored in both the object store and the metadata store.",
		}, []string{"kind"}),
		assetsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_assets_failed_total",
			Help: "Asset creations that failed, by error kind.",
		}, []string{"kind", "reason"}),
		assetsDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_assets_deleted_total",
			Help: "Asset metadata rows deleted.",
		}, []string{"kind"}),
		orphanedBlobs: f.NewCounter(prometheus.CounterOpts{
			Name: "cms_orphaned_blobs_total",
			Help: "Blobs left in the object store without a metadata row.",
		}),
		visitsCounted: f.NewCounter(prometheus.CounterOpts{
			Name: "cms_visits_counted_total",
			Help: "Visits that incremented the site counter.",
		}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "cms_public_cache_hits_total",
			Help: "Public reads served from the cache.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "cms_public_cache_misses_total",
			Help: "Public reads that went to the metadata store.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cms_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if activeSubscriptions != nil {
		m.subscriptions = f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "cms_sync_subscriptions",
			Help: "Live content sync bus subscriptions.",
		}, func() float64 { return float64(activeSubscriptions()) })
	}
	return m
}

func (m *Metrics) AssetCreated(kind cms.AssetKind) {
	m.assetsCreated.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) AssetFailed(kind cms.AssetKind, reason cms.ErrorKind) {
	m.assetsFailed.WithLabelValues(string(kind), reason.String()).Inc()
}

func (m *Metrics) AssetDeleted(kind cms.AssetKind) {
	m.assetsDeleted.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) OrphanedBlobs(n int) { m.orphanedBlobs.Add(float64(n)) }

func (m *Metrics) VisitCounted() { m.visitsCounted.Inc() }

// CacheHit and CacheMiss feed the public read cache counters.
func (m *Metrics) CacheHit()  { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss() { m.cacheMisses.Inc() }

// Middleware records request counts and durations. Routes are labelled by
// their chi pattern so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers flush through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap gives http.ResponseController access to the original writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

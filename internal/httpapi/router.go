// Package httpapi is the HTTP surface of `cms serve`: public reads, the
// change stream, visit recording and the confirmed admin mutations.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cms-go/internal/cms"
	"cms-go/internal/publicview"
)

// Auditor records a mutating action around fn.
type Auditor interface {
	Track(ctx context.Context, name, parameters string, fn func() error) error
}

type noAudit struct{}

func (noAudit) Track(_ context.Context, _, _ string, fn func() error) error { return fn() }

// Middleware wraps the whole router, e.g. for request metrics.
type Middleware func(http.Handler) http.Handler

// Options carries the dependencies of the router.
type Options struct {
	Service *cms.Service
	Reader  *publicview.Reader
	Bus     publicview.Subscriber
	Audit   Auditor
	Logger  cms.Logger

	// AdminToken is the bearer token for /admin. Empty disables /admin.
	AdminToken string

	// Gatherer backs /metrics when set.
	Gatherer   prometheus.Gatherer
	Middleware Middleware

	// Heartbeat is the SSE keep-alive interval. Zero means 15s.
	Heartbeat time.Duration
}

type handler struct {
	svc       *cms.Service
	reader    *publicview.Reader
	bus       publicview.Subscriber
	audit     Auditor
	logger    cms.Logger
	heartbeat time.Duration
}

// NewRouter builds the chi router for opts.
func NewRouter(opts Options) http.Handler {
	h := &handler{
		svc:       opts.Service,
		reader:    opts.Reader,
		bus:       opts.Bus,
		audit:     opts.Audit,
		logger:    opts.Logger,
		heartbeat: opts.Heartbeat,
	}
	if h.audit == nil {
		h.audit = noAudit{}
	}
	if h.logger == nil {
		h.logger = cms.NopLogger{}
	}
	if h.heartbeat <= 0 {
		h.heartbeat = 15 * time.Second
	}

	r := chi.NewRouter()
	if opts.Middleware != nil {
		r.Use(opts.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/content/{table}", h.listContent)
		r.Get("/events", h.listEvents)
		r.Get("/assets/{kind}", h.listAssets)
		r.Get("/counter", h.counter)
		r.Post("/visits", h.recordVisit)
		r.Get("/stats/{series}", h.listStats)
		r.Get("/stats/{series}/export", h.exportStats)
		r.Get("/stream", h.stream)
	})

	if opts.AdminToken != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireToken(opts.AdminToken))

			r.Post("/events", h.createEvent)
			r.Delete("/events/{id}", h.deleteEvent)

			r.Post("/assets/{kind}", h.createAssets)
			r.Delete("/assets/{kind}/{id}", h.deleteAsset)

			r.Get("/content/{table}", h.listAllContent)
			r.Put("/content/{table}", h.saveContent)
			r.Delete("/content/{table}/{id}", h.deleteContent)
			r.Post("/content/{table}/{id}/move", h.moveContent)
			r.Post("/content/{table}/{id}/active", h.setContentActive)

			r.Put("/stats/{series}", h.saveStatRow)
			r.Delete("/stats/{series}/{key}", h.deleteStatRow)

			r.Post("/counter/reset", h.resetCounter)
			r.Post("/counter/touch", h.touchCounter)

			r.Get("/history", h.history)
		})
	}
	return r
}

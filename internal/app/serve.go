package app

import (
	"context"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cms-go/internal/httpapi"
	"cms-go/internal/metrics"
	"cms-go/internal/publicview"
)

// Serve runs the HTTP API on the configured address until ctx is done.
func (a *CMSApp) Serve(ctx context.Context) error {
	srv := a.newServer()
	return srv.Run(ctx)
}

// ServeListener is Serve on an existing listener.
func (a *CMSApp) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := a.newServer()
	return srv.Serve(ctx, ln)
}

func (a *CMSApp) newServer() *httpapi.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, a.hub.Active)
	a.service.SetRecorder(m)

	httpCfg := a.cfg.HTTP
	reader := publicview.NewReader(a.service, a.hub, httpCfg.CacheSize, time.Duration(httpCfg.CacheTTLSeconds)*time.Second, a.logger)
	reader.SetStats(m)
	a.closers = append(a.closers, reader.Close)

	router := httpapi.NewRouter(httpapi.Options{
		Service:    a.service,
		Reader:     reader,
		Bus:        a.hub,
		Audit:      a.auditor,
		Logger:     a.logger,
		AdminToken: httpCfg.AdminToken,
		Gatherer:   reg,
		Middleware: m.Middleware,
	})
	if httpCfg.AdminToken == "" {
		a.logger.Warn("admin_token is empty, /admin is disabled")
	}
	return httpapi.NewServer(httpCfg.Addr, router, time.Duration(httpCfg.ShutdownSeconds)*time.Second, a.logger)
}

package proxy

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/metrics"
	smw "git.home.luguber.info/inful/previewer/internal/server/middleware"
	"git.home.luguber.info/inful/previewer/internal/server/responses"
)

// Router serves /health and /metrics locally and proxies everything else.
// reg may be nil, in which case /metrics is not mounted.
func Router(p *Proxy, rec metrics.Recorder, reg *prometheus.Registry) http.Handler {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	r := chi.NewRouter()
	r.Use(smw.Chain(p.logger, ferrors.NewHTTPErrorAdapter(p.logger), func(status int, _ time.Duration) {
		rec.IncProxyRequest(status)
	}))
	r.Get("/health", responses.Health("reverse-proxy"))
	if reg != nil {
		r.Handle("/metrics", metrics.HTTPHandler(reg))
	}
	r.NotFound(p.ServeHTTP)
	r.MethodNotAllowed(p.ServeHTTP)
	r.Handle("/*", p)
	return r
}

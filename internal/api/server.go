// Package api is the HTTP front of the dispatcher.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/previewer/internal/build"
	"git.home.luguber.info/inful/previewer/internal/dispatch"
	"git.home.luguber.info/inful/previewer/internal/eventstore"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/metrics"
	smw "git.home.luguber.info/inful/previewer/internal/server/middleware"
	"git.home.luguber.info/inful/previewer/internal/server/responses"
)

// Submitter is the dispatcher as seen by the HTTP layer.
type Submitter interface {
	SubmitBuild(ctx context.Context, req build.BuildRequest) (dispatch.Submission, error)
}

// Server represents the API server.
type Server struct {
	Addr      string
	router    *chi.Mux
	server    *http.Server
	submitter Submitter
	ledger    eventstore.Store
	registry  *prometheus.Registry
	origin    string
	adapter   *ferrors.HTTPErrorAdapter
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLedger enables GET /project/{slug}/builds.
func WithLedger(store eventstore.Store) Option { return func(s *Server) { s.ledger = store } }

// WithMetricsRegistry serves reg at /metrics.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithFrontendOrigin allows cross-origin calls from origin.
func WithFrontendOrigin(origin string) Option { return func(s *Server) { s.origin = origin } }

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// writeTimeout outlasts the provisioner timeout, since POST /project holds
// the request open until the launch is acknowledged.
const writeTimeout = 3 * time.Minute

// NewServer creates a new API server.
func NewServer(addr string, sub Submitter, opts ...Option) *Server {
	s := &Server{
		Addr:      addr,
		router:    chi.NewRouter(),
		submitter: sub,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.adapter = ferrors.NewHTTPErrorAdapter(s.logger)

	s.setupRoutes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(smw.Chain(s.logger, s.adapter))
	s.router.Use(cors(s.origin))

	s.router.Get("/health", responses.Health("api-server"))
	s.router.Post("/project", s.handleCreateProject)
	s.router.Get("/project/{slug}/builds", s.handleListBuilds)

	if s.registry != nil {
		s.router.Handle("/metrics", metrics.HTTPHandler(s.registry))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Success writes a success response.
func (s *Server) Success(w http.ResponseWriter, code int, status string, data any) {
	responses.WriteJSON(w, code, responses.Envelope{Status: status, Data: data})
}

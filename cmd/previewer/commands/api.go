package commands

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/previewer/internal/api"
	"git.home.luguber.info/inful/previewer/internal/bus"
	"git.home.luguber.info/inful/previewer/internal/dispatch"
	"git.home.luguber.info/inful/previewer/internal/eventstore"
	"git.home.luguber.info/inful/previewer/internal/logfields"
	"git.home.luguber.info/inful/previewer/internal/metrics"
	"git.home.luguber.info/inful/previewer/internal/relay"
)

// APICmd implements the 'api' command: the dispatcher behind POST /project
// and the log relay on the socket port, in one process.
type APICmd struct{}

func (c *APICmd) Run(g *Global, root *CLI) error {
	cfg, err := root.load(g, "api")
	if err != nil {
		return err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewPrometheusRecorder(reg)

	prov, err := provisioners().Open(ctx, cfg.Provisioner)
	if err != nil {
		return err
	}
	if s, ok := prov.(interface{ Shutdown(context.Context) error }); ok {
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.Shutdown(drainCtx); err != nil {
				slog.Warn("Workers still running at shutdown", logfields.Error(err))
			}
		}()
	}

	dispatchOpts := []dispatch.Option{dispatch.WithRecorder(rec), dispatch.WithLogger(g.Logger)}
	serverOpts := []api.Option{
		api.WithMetricsRegistry(reg),
		api.WithFrontendOrigin(cfg.API.FrontendOrigin),
		api.WithLogger(g.Logger),
	}
	if cfg.Ledger.Path != "" {
		ledger, err := eventstore.NewSQLiteStore(cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer func() { _ = ledger.Close() }()
		retention, err := eventstore.NewRetention(ledger, cfg.Ledger.Retention, eventstore.DefaultPruneInterval)
		if err != nil {
			return err
		}
		retention.Start()
		defer func() { _ = retention.Stop() }()

		dispatchOpts = append(dispatchOpts, dispatch.WithLedger(ledger))
		serverOpts = append(serverOpts, api.WithLedger(ledger))
		slog.Info("Dispatch ledger enabled", logfields.Path(cfg.Ledger.Path))
	}

	d, err := dispatch.New(cfg, prov, dispatchOpts...)
	if err != nil {
		return err
	}
	srv := api.NewServer(":"+strconv.Itoa(cfg.API.Port), d, serverOpts...)

	hub := relay.NewHub(relay.WithRecorder(rec), relay.WithQueueSize(cfg.Relay.QueueSize))
	var sub bus.PatternSubscriber
	if b := connectBus(cfg, "previewer-relay"); b != nil {
		defer func() { _ = b.Close() }()
		sub = b
	}
	relaySrv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Relay.Port),
		Handler:           relay.Router(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting previewer api",
		logfields.Provider(prov.Name()),
		slog.Int("port", cfg.API.Port),
		slog.Int("relay_port", cfg.Relay.Port))
	return runTasks(ctx,
		serverTask("api", srv.Addr, srv.Start, srv.Shutdown),
		httpServerTask("relay", relaySrv),
		task{name: "relay hub", run: func(ctx context.Context) error { return hub.Run(ctx, sub) }},
	)
}

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

	"git.home.luguber.info/inful/previewer/internal/logfields"
	"git.home.luguber.info/inful/previewer/internal/metrics"
	"git.home.luguber.info/inful/previewer/internal/proxy"
)

// ProxyCmd implements the 'proxy' command.
type ProxyCmd struct{}

func (p *ProxyCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.load(g, "proxy")
	if err != nil {
		return err
	}
	if err := cfg.ValidateProxy(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []proxy.Option{proxy.WithLogger(g.Logger)}
	if cfg.ProxyReadsStore() {
		store, err := objectStores().Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		opts = append(opts, proxy.WithStore(store))
	}
	rp, err := proxy.New(proxy.SettingsFrom(cfg), opts...)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Proxy.Port),
		Handler:           proxy.Router(rp, rec, reg),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	slog.Info("Starting preview proxy",
		logfields.URL(cfg.Storage.BaseURL),
		slog.Bool("reads_store", cfg.ProxyReadsStore()),
		slog.String("container", cfg.Storage.Container),
		slog.Int("port", cfg.Proxy.Port))
	return runTasks(ctx, httpServerTask("proxy", srv))
}

package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/previewer/internal/bus/natsbus"
	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/logfields"
	"git.home.luguber.info/inful/previewer/internal/objectstore"
	"git.home.luguber.info/inful/previewer/internal/objectstore/azblob"
	"git.home.luguber.info/inful/previewer/internal/objectstore/fsstore"
	"git.home.luguber.info/inful/previewer/internal/observability"
	"git.home.luguber.info/inful/previewer/internal/provisioner"
	"git.home.luguber.info/inful/previewer/internal/provisioner/aci"
	"git.home.luguber.info/inful/previewer/internal/provisioner/process"
)

// shutdownTimeout bounds the drain of in-flight requests on SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

// Global is passed to every command's Run.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (optional; environment variables always apply)" env:"PREVIEWER_CONFIG" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	API    APICmd    `cmd:"" name:"api" help:"Serve the dispatch API and the live log relay"`
	Worker WorkerCmd `cmd:"" help:"Run one clone, build and upload job described by the environment"`
	Proxy  ProxyCmd  `cmd:"" help:"Serve previews from object storage by subdomain"`
}

// AfterApply installs a bootstrap logger; commands replace it once the
// configuration is loaded.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(observability.ContextHandler{
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	})
	slog.SetDefault(g.Logger)
	return nil
}

// load reads the configuration and switches logging to its settings.
func (c *CLI) load(g *Global, role string) (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	g.Logger = observability.NewLogger(cfg.Log, os.Stderr, role, c.Verbose)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

func provisioners() *provisioner.Registry {
	return provisioner.NewRegistry().
		Register(config.ProvisionerProcess, process.Factory).
		Register(config.ProvisionerACI, aci.Factory)
}

func objectStores() *objectstore.Registry {
	return objectstore.NewRegistry().
		Register(config.StorageFS, fsstore.Factory).
		Register(config.StorageAzBlob, azblob.Factory)
}

// connectBus returns nil when no bus is configured or it cannot be reached.
// Log streaming is best effort; nothing else depends on it.
func connectBus(cfg *config.Config, name string) *natsbus.Bus {
	if cfg.Bus.URL == "" {
		slog.Warn("No message bus configured; live build logs are disabled")
		return nil
	}
	if err := natsbus.CheckURL(cfg.Bus.URL); err != nil {
		slog.Warn("Message bus URL is not a NATS URL; live build logs are disabled", logfields.Error(err))
		return nil
	}
	b, err := natsbus.Connect(cfg.Bus.URL, natsbus.WithName(name))
	if err != nil {
		slog.Warn("Message bus unavailable; live build logs are disabled", logfields.Error(err))
		return nil
	}
	return b
}

// task is one long running part of a command. run blocks until ctx ends or
// the task fails.
type task struct {
	name string
	run  func(ctx context.Context) error
}

// runTasks runs every task until ctx ends or one of them fails, then waits
// for all of them.
func runTasks(ctx context.Context, tasks ...task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			if err := t.run(gctx); err != nil {
				return ferrors.WrapError(err, ferrors.CategoryRuntime, t.name+" stopped").Build()
			}
			return nil
		})
	}
	return g.Wait()
}

// serverTask serves until ctx ends, then drains in-flight requests for up to
// shutdownTimeout.
func serverTask(name, addr string, start func() error, shutdown func(context.Context) error) task {
	return task{name: name, run: func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- start() }()
		slog.Info("HTTP server listening", "server", name, "addr", addr)

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		slog.Info("Shutting down HTTP server", "server", name)
		return shutdown(drainCtx)
	}}
}

func httpServerTask(name string, srv *http.Server) task {
	return serverTask(name, srv.Addr, srv.ListenAndServe, srv.Shutdown)
}

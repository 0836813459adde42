package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/previewer/internal/logfields"
	"git.home.luguber.info/inful/previewer/internal/observability"
	"git.home.luguber.info/inful/previewer/internal/worker"
)

// WorkerCmd implements the 'worker' command. Everything it needs arrives in
// the environment set by the provisioner.
type WorkerCmd struct{}

func (w *WorkerCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.load(g, "worker")
	if err != nil {
		return err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings := worker.SettingsFrom(cfg)
	ctx = observability.WithTraceID(observability.WithProjectID(ctx, settings.ProjectID), settings.TraceID)

	store, err := objectStores().Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runner := worker.ExecRunner{}
	cloner, err := worker.NewCloner(cfg.Worker.CloneMethod, runner)
	if err != nil {
		return err
	}

	var opts []worker.Option
	if b := connectBus(cfg, "previewer-worker-"+settings.ProjectID); b != nil {
		// The pipeline closes the publisher when it finishes.
		opts = append(opts, worker.WithPublisher(b))
	}

	slog.InfoContext(ctx, "Starting build",
		logfields.URL(settings.GitURL),
		slog.String("clone_method", string(cfg.Worker.CloneMethod)))
	return worker.New(settings, cloner, runner, store, opts...).Run(ctx)
}

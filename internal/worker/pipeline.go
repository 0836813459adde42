// Package worker runs one build job: clone the repository, run its build
// command, upload the output directory to the object store. Every step is
// reported as a structured log event on the message bus.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/previewer/internal/build"
	"git.home.luguber.info/inful/previewer/internal/bus"
	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/logfields"
	"git.home.luguber.info/inful/previewer/internal/metrics"
	"git.home.luguber.info/inful/previewer/internal/objectstore"
)

// Settings are the per-job parameters, normally read from the launch
// environment.
type Settings struct {
	ProjectID         string
	TraceID           string
	GitURL            string
	WorkDir           string
	OutputDir         string
	BuildCommand      string
	Prefix            string
	CacheControl      string
	UploadConcurrency int
	PublishTimeout    time.Duration
}

// SettingsFrom extracts worker settings from cfg. A missing trace id is
// replaced by a fresh UUID.
func SettingsFrom(cfg *config.Config) Settings {
	s := Settings{
		ProjectID:         cfg.Worker.ProjectID,
		TraceID:           cfg.Worker.TraceID,
		GitURL:            cfg.Worker.GitURL,
		WorkDir:           cfg.Worker.WorkDir,
		OutputDir:         cfg.Worker.OutputDir,
		BuildCommand:      cfg.Worker.BuildCommand,
		Prefix:            cfg.Storage.Prefix,
		CacheControl:      cfg.Storage.CacheControl,
		UploadConcurrency: cfg.Worker.UploadConcurrency,
		PublishTimeout:    cfg.Worker.PublishTimeout,
	}
	if s.TraceID == "" {
		s.TraceID = uuid.NewString()
	}
	return s
}

// Pipeline executes the clone, build and upload stages for one job.
type Pipeline struct {
	settings Settings
	cloner   Cloner
	runner   Runner
	store    objectstore.ObjectStore
	pub      bus.Publisher
	recorder metrics.Recorder
	now      func() time.Time
	job      *build.BuildJob
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithPublisher streams log events to pub. Without one, events are only
// written to the process log.
func WithPublisher(pub bus.Publisher) Option { return func(p *Pipeline) { p.pub = pub } }

func WithRecorder(r metrics.Recorder) Option { return func(p *Pipeline) { p.recorder = r } }

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// New builds a pipeline. store must be non-nil.
func New(s Settings, cloner Cloner, runner Runner, store objectstore.ObjectStore, opts ...Option) *Pipeline {
	if s.UploadConcurrency <= 0 {
		s.UploadConcurrency = config.DefaultUploadConcurrency
	}
	if s.PublishTimeout <= 0 {
		s.PublishTimeout = config.DefaultPublishTimeout
	}
	if s.OutputDir == "" {
		s.OutputDir = config.DefaultOutputDir
	}
	if s.BuildCommand == "" {
		s.BuildCommand = config.DefaultBuildCommand
	}
	p := &Pipeline{
		settings: s,
		cloner:   cloner,
		runner:   runner,
		store:    store,
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
		job:      build.NewBuildJob(s.ProjectID, s.TraceID),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Job exposes the job status, mainly for tests and the final log line.
func (p *Pipeline) Job() *build.BuildJob { return p.job }

type stage struct {
	status build.Status
	name   build.Stage
	run    func(context.Context) error
}

// Run executes the stages in order and returns a pipeline error for the
// first failing one. The bus publisher is always closed before returning.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.closePublisher()

	stages := []stage{
		{build.StatusCloning, build.StageClone, p.runClone},
		{build.StatusBuilding, build.StageBuild, p.runBuild},
		{build.StatusUploading, build.StageUpload, p.runUpload},
	}
	for _, st := range stages {
		if err := p.job.Advance(st.status); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryInternal, "pipeline state").Build()
		}
		start := p.now()
		err := st.run(ctx)
		p.recorder.ObserveStageDuration(string(st.name), p.now().Sub(start))
		if err != nil {
			p.recorder.IncStageResult(string(st.name), metrics.ResultFailed)
			return p.fail(ctx, err)
		}
		p.recorder.IncStageResult(string(st.name), metrics.ResultSuccess)
	}

	if err := p.job.Advance(build.StatusDone); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "pipeline state").Build()
	}
	p.emit(ctx, build.StageInfo, build.CompleteMessage)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, cause error) error {
	failed, _ := p.job.Fail()
	msg := describe(cause)
	p.emit(ctx, build.StageError, msg)
	return ferrors.PipelineError(msg).
		WithContext("stage", string(failed)).
		WithContext("project_id", p.settings.ProjectID).
		Build()
}

// runClone replaces the working directory with a fresh clone.
func (p *Pipeline) runClone(ctx context.Context) error {
	p.emit(ctx, build.StageClone, "Cloning repository "+p.settings.GitURL)

	if err := os.RemoveAll(p.settings.WorkDir); err != nil {
		return fmt.Errorf("failed to remove working directory: %w", err)
	}
	if parent := filepath.Dir(p.settings.WorkDir); parent != "." {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return fmt.Errorf("failed to create working directory parent: %w", err)
		}
	}

	proc := p.cloner.Clone(ctx, p.settings.GitURL, p.settings.WorkDir)
	for line := range proc.Lines() {
		p.emit(ctx, build.StageClone, line.Text)
	}
	code, err := proc.Wait()
	if err != nil {
		return fmt.Errorf("git clone failed: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("git clone failed with exit code %d", code)
	}
	p.emit(ctx, build.StageClone, "Repository cloned")
	return nil
}

// runBuild runs the install and build command in the working directory.
func (p *Pipeline) runBuild(ctx context.Context) error {
	p.emit(ctx, build.StageBuild, "Build started...")

	proc := p.runner.Command(ctx, p.settings.WorkDir, "sh", "-c", p.settings.BuildCommand)
	for line := range proc.Lines() {
		st := build.StageBuild
		if line.Stream == Stderr {
			st = build.StageError
		}
		p.emit(ctx, st, line.Text)
	}
	code, err := proc.Wait()
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("build failed with exit code %d", code)
	}
	p.emit(ctx, build.StageBuild, "Build complete")
	return nil
}

// emit logs the event locally and publishes it. Publishing problems are
// logged and never fail the job.
func (p *Pipeline) emit(ctx context.Context, st build.Stage, msg string) {
	ev := build.LogEvent{
		TraceID:   p.settings.TraceID,
		ProjectID: p.settings.ProjectID,
		Stage:     st,
		Message:   msg,
		Timestamp: p.now().UTC(),
	}
	slog.Info(msg, logfields.Stage(string(st)), logfields.ProjectID(ev.ProjectID), logfields.TraceID(ev.TraceID))

	if p.pub == nil {
		return
	}
	payload, err := ev.Encode()
	if err != nil {
		slog.Warn("Failed to encode log event", logfields.Error(err))
		return
	}
	// A canceled job still reports its failure, so publishing gets its own
	// deadline instead of inheriting ctx's cancellation.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.settings.PublishTimeout)
	defer cancel()
	if err := p.pub.Publish(pctx, build.Channel(p.settings.ProjectID), payload); err != nil {
		slog.Warn("Failed to publish log event", logfields.Channel(build.Channel(p.settings.ProjectID)), logfields.Error(err))
	}
}

func (p *Pipeline) closePublisher() {
	if p.pub == nil {
		return
	}
	if err := p.pub.Close(); err != nil {
		slog.Warn("Failed to close bus connection", logfields.Error(err))
	}
}

// describe renders err for a log event, without classification prefixes.
func describe(err error) string {
	if c, ok := ferrors.AsClassified(err); ok {
		return c.Detail()
	}
	return err.Error()
}

// Package dispatch turns build requests into provisioned worker launches.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/previewer/internal/build"
	"git.home.luguber.info/inful/previewer/internal/config"
	"git.home.luguber.info/inful/previewer/internal/eventstore"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/logfields"
	"git.home.luguber.info/inful/previewer/internal/metrics"
	"git.home.luguber.info/inful/previewer/internal/observability"
	"git.home.luguber.info/inful/previewer/internal/provisioner"
)

// Submission is what a caller gets back for a queued build.
type Submission struct {
	ProjectSlug string `json:"projectSlug"`
	JobRef      string `json:"jobRef"`
	TraceID     string `json:"traceId"`
	PreviewURL  string `json:"url"`
}

// Dispatcher validates requests, builds job specs and hands them to a
// provisioner. It holds no per-build state: concurrent submissions for the
// same slug each provision their own worker.
type Dispatcher struct {
	cfg         *config.Config
	provisioner provisioner.Provisioner
	validator   *requestValidator
	slugs       SlugGenerator
	ledger      eventstore.Store
	recorder    metrics.Recorder
	logger      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLedger records every dispatch outcome in store.
func WithLedger(store eventstore.Store) Option { return func(d *Dispatcher) { d.ledger = store } }

// WithRecorder reports dispatch metrics.
func WithRecorder(r metrics.Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithSlugGenerator replaces the random slug source.
func WithSlugGenerator(g SlugGenerator) Option { return func(d *Dispatcher) { d.slugs = g } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New checks the API configuration up front so a misconfigured server
// never starts. prov may be nil; every submission then fails with a
// configuration error.
func New(cfg *config.Config, prov provisioner.Provisioner, opts ...Option) (*Dispatcher, error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("dispatcher configuration is missing").Build()
	}
	if err := cfg.ValidateAPI(); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		cfg:         cfg,
		provisioner: prov,
		validator:   newRequestValidator(),
		slugs:       RandomSlug,
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// SubmitBuild validates req, fills in slug and trace id, and provisions a
// worker. It returns once the platform acknowledged the launch.
func (d *Dispatcher) SubmitBuild(ctx context.Context, req build.BuildRequest) (Submission, error) {
	req.GitURL = strings.TrimSpace(req.GitURL)
	if err := d.validator.check(req); err != nil {
		d.recorder.IncDispatch(metrics.DispatchInvalid)
		return Submission{}, err
	}
	if d.provisioner == nil {
		d.recorder.IncDispatch(metrics.DispatchConfigError)
		return Submission{}, ferrors.ConfigError("no provisioner configured").Build()
	}

	slug := req.Slug
	if slug == "" {
		slug = d.slugs()
	}
	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	ctx = observability.WithTraceID(observability.WithProjectID(ctx, slug), traceID)
	spec := d.jobSpec(slug, traceID, req.GitURL)
	logger := d.logger.With(logfields.Provider(d.provisioner.Name()))

	pctx, cancel := context.WithTimeout(ctx, d.cfg.Provisioner.Timeout)
	defer cancel()
	start := time.Now()
	handle, err := d.provisioner.Provision(pctx, spec)
	d.recorder.ObserveProvisionDuration(d.provisioner.Name(), time.Since(start), err == nil)

	record := eventstore.Dispatch{TraceID: traceID, GitURL: req.GitURL, Provider: d.provisioner.Name()}
	if err != nil {
		d.recorder.IncDispatch(metrics.DispatchProvisionFailed)
		perr := provisioningFailure(err, slug)
		logger.ErrorContext(ctx, "Failed to provision build", logfields.Error(perr))
		record.Error = detail(err)
		d.record(ctx, eventstore.NewBuildProvisionFailed, slug, record)
		return Submission{}, perr
	}

	d.recorder.IncDispatch(metrics.DispatchQueued)
	record.JobRef = handle.JobRef
	d.record(ctx, eventstore.NewBuildQueued, slug, record)
	logger.InfoContext(ctx, "Build queued", logfields.JobRef(handle.JobRef))

	return Submission{
		ProjectSlug: slug,
		JobRef:      handle.JobRef,
		TraceID:     traceID,
		PreviewURL:  strings.TrimRight(d.cfg.API.PreviewBase, "/") + "/" + slug,
	}, nil
}

// jobSpec assembles the worker launch: one resource request and the
// environment the worker reads its settings from.
func (d *Dispatcher) jobSpec(slug, traceID, gitURL string) build.JobSpec {
	st := d.cfg.Storage
	env := map[string]string{
		build.EnvGitURL:           gitURL,
		build.EnvProjectID:        slug,
		build.EnvTraceID:          traceID,
		build.EnvStorageProvider:  string(st.Type),
		build.EnvStorageContainer: st.Container,
		build.EnvStoragePrefix:    st.Prefix,
	}
	switch st.Type {
	case config.StorageAzBlob:
		env[build.EnvStorageAccount] = st.Account
	case config.StorageFS:
		env[build.EnvStorageRoot] = st.Root
	}
	if st.CacheControl != "" {
		env[build.EnvCacheControl] = st.CacheControl
	}
	if d.cfg.Bus.URL != "" {
		env[build.EnvBusURL] = d.cfg.Bus.URL
	}
	p := d.cfg.Provisioner
	return build.NewJobSpec(slug, traceID, gitURL, p.BuilderImage,
		build.Resources{CPU: p.CPU, MemoryGB: p.MemoryGB}, env)
}

func (d *Dispatcher) record(ctx context.Context, mk func(string, eventstore.Dispatch) (eventstore.Event, error), slug string, rec eventstore.Dispatch) {
	if d.ledger == nil {
		return
	}
	e, err := mk(slug, rec)
	if err == nil {
		// The caller's answer does not depend on the ledger.
		err = d.ledger.Append(context.WithoutCancel(ctx), e)
	}
	if err != nil {
		d.logger.Warn("Failed to record dispatch", logfields.ProjectID(slug), logfields.Error(err))
	}
}

// provisioningFailure keeps a classified provisioner error as is and wraps
// anything else, so the underlying message reaches the caller.
func provisioningFailure(err error, slug string) error {
	if c, ok := ferrors.AsClassified(err); ok && c.Category() == ferrors.CategoryProvisioning {
		return err
	}
	return ferrors.WrapError(err, ferrors.CategoryProvisioning, "failed to provision build").
		WithContext("project_id", slug).Build()
}

func detail(err error) string {
	if c, ok := ferrors.AsClassified(err); ok {
		return c.Detail()
	}
	return err.Error()
}

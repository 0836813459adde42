// Package process provisions workers as local subprocesses. It is the
// development and single-host counterpart of the aci provisioner: the
// builder image is the path of the worker executable and the job spec's
// environment is appended to the parent's.
package process

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/previewer/internal/build"
	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/logfields"
	"git.home.luguber.info/inful/previewer/internal/provisioner"
	"git.home.luguber.info/inful/previewer/internal/workspace"
)

// Provisioner starts one child process per job and reaps it in the background.
type Provisioner struct {
	args          []string
	logDir        string
	workspaceRoot string
	prefix        string
	now           func() time.Time
	group         workerGroup

	mu       sync.Mutex
	running  map[string]*exec.Cmd
	lastExit map[string]int
}

// New returns a process provisioner for cfg.
func New(cfg config.ProvisionerConfig) *Provisioner {
	return &Provisioner{
		args:          cfg.Process.Args,
		logDir:        cfg.Process.LogDir,
		workspaceRoot: cfg.Process.WorkspaceRoot,
		prefix:        cfg.NamePrefix,
		now:           time.Now,
		running:       make(map[string]*exec.Cmd),
		lastExit:      make(map[string]int),
	}
}

// Factory adapts New to provisioner.Factory.
func Factory(_ context.Context, cfg config.ProvisionerConfig) (provisioner.Provisioner, error) {
	return New(cfg), nil
}

func (p *Provisioner) Name() string { return string(config.ProvisionerProcess) }

// Provision starts the worker and returns as soon as the process exists.
// The child is not tied to ctx: a finished HTTP request must not kill a
// running build.
func (p *Provisioner) Provision(ctx context.Context, spec build.JobSpec) (provisioner.Handle, error) {
	if err := ctx.Err(); err != nil {
		return provisioner.Handle{}, ferrors.WrapError(err, ferrors.CategoryProvisioning, "launch canceled").Build()
	}
	if spec.BuilderImage() == "" {
		return provisioner.Handle{}, ferrors.ConfigError("worker executable is not configured").Build()
	}

	name := provisioner.JobName(p.prefix, spec.ProjectSlug(), p.now())
	ws := workspace.NewManager(p.workspaceRoot, name)
	if err := ws.Create(); err != nil {
		return provisioner.Handle{}, err
	}
	// #nosec G204 -- the executable comes from operator configuration
	cmd := exec.Command(spec.BuilderImage(), p.args...)
	cmd.Dir = ws.GetPath()
	cmd.Env = append(os.Environ(), spec.EnvList()...)

	out, err := p.output(name)
	if err != nil {
		_ = ws.Cleanup()
		return provisioner.Handle{}, ferrors.WrapError(err, ferrors.CategoryProvisioning, "failed to open worker log").
			WithContext("job_ref", name).Build()
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		_ = out.Close()
		_ = ws.Cleanup()
		return provisioner.Handle{}, ferrors.WrapError(err, ferrors.CategoryProvisioning, "failed to start worker").
			WithContext("job_ref", name).Build()
	}

	p.mu.Lock()
	p.running[name] = cmd
	p.mu.Unlock()

	started := p.group.Go(func() {
		p.reap(name, cmd, out, ws)
	})
	if !started {
		_ = cmd.Process.Kill()
		p.reap(name, cmd, out, ws)
		return provisioner.Handle{}, ferrors.ProvisioningError("provisioner is shutting down").Build()
	}

	slog.Info("Worker process started",
		logfields.JobRef(name),
		logfields.ProjectID(spec.ProjectSlug()),
		logfields.TraceID(spec.TraceID()),
		slog.Int("pid", cmd.Process.Pid))
	return provisioner.Handle{JobRef: name}, nil
}

func (p *Provisioner) reap(name string, cmd *exec.Cmd, out io.Closer, ws *workspace.Manager) {
	err := cmd.Wait()
	_ = out.Close()
	if cerr := ws.Cleanup(); cerr != nil {
		slog.Warn("Failed to remove worker workspace", logfields.JobRef(name), logfields.Error(cerr))
	}

	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	p.mu.Lock()
	delete(p.running, name)
	p.lastExit[name] = code
	p.mu.Unlock()

	if err != nil {
		slog.Warn("Worker process failed", logfields.JobRef(name), logfields.ExitCode(code), logfields.Error(err))
		return
	}
	slog.Info("Worker process finished", logfields.JobRef(name), logfields.ExitCode(code))
}

// ExitCode reports the exit code of a finished job.
func (p *Provisioner) ExitCode(jobRef string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	code, ok := p.lastExit[jobRef]
	return code, ok
}

// Running returns the number of live worker processes.
func (p *Provisioner) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Shutdown stops accepting launches and waits for running workers. When ctx
// expires first the remaining workers are killed.
func (p *Provisioner) Shutdown(ctx context.Context) error {
	err := p.group.StopAndWait(ctx)
	if err == nil {
		return nil
	}
	p.mu.Lock()
	for name, cmd := range p.running {
		slog.Warn("Killing worker process", logfields.JobRef(name))
		_ = cmd.Process.Kill()
	}
	p.mu.Unlock()
	return err
}

func (p *Provisioner) output(name string) (io.WriteCloser, error) {
	if p.logDir == "" {
		return nopWriteCloser{io.Discard}, nil
	}
	if err := os.MkdirAll(p.logDir, 0o750); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(p.logDir, name+".log"))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

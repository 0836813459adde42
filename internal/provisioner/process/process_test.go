package process

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/previewer/internal/build"
	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

func shellProvisioner(t *testing.T, script string) (*Provisioner, string) {
	t.Helper()
	logDir := t.TempDir()
	p := New(config.ProvisionerConfig{
		NamePrefix: "build-",
		Process: config.ProcessConfig{
			Args:          []string{"-c", script},
			LogDir:        logDir,
			WorkspaceRoot: filepath.Join(t.TempDir(), "workspaces"),
		},
	})
	p.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return p, logDir
}

func TestProvision_PassesEnvironment(t *testing.T) {
	p, logDir := shellProvisioner(t, `echo "$PROJECT_ID $TRACE_ID $GIT_REPOSITORY_URL"`)

	spec := build.NewJobSpec("brave-lion-42", "trace-1", "https://example.com/r.git", "/bin/sh", build.Resources{}, map[string]string{
		build.EnvProjectID: "brave-lion-42",
		build.EnvTraceID:   "trace-1",
		build.EnvGitURL:    "https://example.com/r.git",
	})

	h, err := p.Provision(context.Background(), spec)
	require.NoError(t, err)
	require.Equal(t, "build-brave-lion-42-1700000000000", h.JobRef)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	out, err := os.ReadFile(filepath.Join(logDir, h.JobRef+".log"))
	require.NoError(t, err)
	require.Equal(t, "brave-lion-42 trace-1 https://example.com/r.git", strings.TrimSpace(string(out)))

	code, ok := p.ExitCode(h.JobRef)
	require.True(t, ok)
	require.Equal(t, 0, code)
	require.Equal(t, 0, p.Running())
}

func TestProvision_RunsInPrivateWorkspace(t *testing.T) {
	p, logDir := shellProvisioner(t, `pwd; mkdir output`)
	spec := build.NewJobSpec("brave-lion-42", "t", "u", "/bin/sh", build.Resources{}, nil)

	h, err := p.Provision(context.Background(), spec)
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	out, err := os.ReadFile(filepath.Join(logDir, h.JobRef+".log"))
	require.NoError(t, err)
	dir := strings.TrimSpace(string(out))
	root, err := filepath.EvalSymlinks(p.workspaceRoot)
	require.NoError(t, err)
	require.Equal(t, root, filepath.Dir(dir))
	require.True(t, strings.HasPrefix(filepath.Base(dir), h.JobRef+"-"))
	require.NoDirExists(t, dir, "workspace is removed once the worker exits")
}

func TestProvision_OutputsOutliveWorkspace(t *testing.T) {
	cwd := t.TempDir()
	t.Chdir(cwd)
	cfg := config.Default()

	p, _ := shellProvisioner(t, `mkdir -p "$STORAGE_ROOT/c" && echo hi > "$STORAGE_ROOT/c/index.html"`)
	spec := build.NewJobSpec("p", "t", "u", "/bin/sh", build.Resources{}, map[string]string{
		build.EnvStorageRoot: cfg.Storage.Root,
	})

	_, err := p.Provision(context.Background(), spec)
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	entries, err := os.ReadDir(p.workspaceRoot)
	require.NoError(t, err)
	require.Empty(t, entries, "workspace is removed once the worker exits")
	require.FileExists(t, filepath.Join(cwd, config.DefaultStorageRoot, "c", "index.html"))
}

func TestProvision_RecordsExitCode(t *testing.T) {
	p, _ := shellProvisioner(t, "exit 3")
	spec := build.NewJobSpec("p", "t", "u", "/bin/sh", build.Resources{}, nil)

	h, err := p.Provision(context.Background(), spec)
	require.NoError(t, err, "launch succeeds even when the worker later fails")
	require.NoError(t, p.Shutdown(context.Background()))

	code, _ := p.ExitCode(h.JobRef)
	require.Equal(t, 3, code)
}

func TestProvision_StartFailure(t *testing.T) {
	p, _ := shellProvisioner(t, "")
	spec := build.NewJobSpec("p", "t", "u", filepath.Join(t.TempDir(), "missing-binary"), build.Resources{}, nil)

	_, err := p.Provision(context.Background(), spec)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryProvisioning))
}

func TestProvision_CanceledContext(t *testing.T) {
	p, _ := shellProvisioner(t, "true")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Provision(ctx, build.NewJobSpec("p", "t", "u", "/bin/sh", build.Resources{}, nil))
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryProvisioning))
}

func TestShutdown_KillsOnDeadline(t *testing.T) {
	p, _ := shellProvisioner(t, "sleep 30")
	_, err := p.Provision(context.Background(), build.NewJobSpec("p", "t", "u", "/bin/sh", build.Resources{}, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, p.Shutdown(ctx))
	require.Eventually(t, func() bool { return p.Running() == 0 }, 5*time.Second, 10*time.Millisecond)

	_, err = p.Provision(context.Background(), build.NewJobSpec("p", "t", "u", "/bin/sh", build.Resources{}, nil))
	require.Error(t, err, "no launches after shutdown")
}

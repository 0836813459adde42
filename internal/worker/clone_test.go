package worker

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

// initRepo creates a repository with one committed file.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"site"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := wt.Add("package.json"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := wt.Commit("init", &git.CommitOptions{Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return dir
}

func TestGoGitCloner(t *testing.T) {
	src := initRepo(t)
	dst := filepath.Join(t.TempDir(), "output")

	e := GoGitCloner{}.Clone(context.Background(), src, dst)
	var lines []string
	for l := range e.Lines() {
		lines = append(lines, l.Text)
	}
	code, err := e.Wait()
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.NotEmpty(t, lines)

	_, err = os.Stat(filepath.Join(dst, "package.json"))
	require.NoError(t, err)
}

func TestGoGitCloner_FailureExitCode(t *testing.T) {
	e := GoGitCloner{}.Clone(context.Background(), filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "out"))
	var stderr []string
	for l := range e.Lines() {
		if l.Stream == Stderr {
			stderr = append(stderr, l.Text)
		}
	}
	code, err := e.Wait()
	require.NoError(t, err)
	require.Equal(t, 128, code)
	require.NotEmpty(t, stderr)
	require.True(t, strings.HasPrefix(stderr[0], "fatal: "))
}

func TestGitCLICloner(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	src := initRepo(t)
	dst := filepath.Join(t.TempDir(), "output")

	code, err := GitCLICloner{Runner: ExecRunner{}}.Clone(context.Background(), src, dst).Wait()
	require.NoError(t, err)
	require.Equal(t, 0, code)
	_, err = os.Stat(filepath.Join(dst, "package.json"))
	require.NoError(t, err)

	code, err = GitCLICloner{Runner: ExecRunner{}}.Clone(context.Background(), filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "o")).Wait()
	require.NoError(t, err)
	require.Equal(t, 128, code)
}

func TestNewCloner(t *testing.T) {
	c, err := NewCloner(config.CloneGitCLI, ExecRunner{})
	require.NoError(t, err)
	require.IsType(t, GitCLICloner{}, c)

	c, err = NewCloner(config.CloneGoGit, ExecRunner{})
	require.NoError(t, err)
	require.IsType(t, GoGitCloner{}, c)

	_, err = NewCloner("svn", ExecRunner{})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

package worker

import (
	"context"
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

// Cloner fetches a repository into dir, which must not exist.
type Cloner interface {
	Clone(ctx context.Context, url, dir string) *Execution
}

// NewCloner selects the clone implementation configured by method.
func NewCloner(method config.CloneMethod, runner Runner) (Cloner, error) {
	switch method {
	case config.CloneGitCLI, "":
		return GitCLICloner{Runner: runner}, nil
	case config.CloneGoGit:
		return GoGitCloner{}, nil
	default:
		return nil, ferrors.ConfigError("unsupported clone method").WithContext("method", string(method)).Build()
	}
}

// GitCLICloner shells out to git, so exit codes are git's own.
type GitCLICloner struct {
	Runner Runner
}

func (c GitCLICloner) Clone(ctx context.Context, url, dir string) *Execution {
	return c.Runner.Command(ctx, "", "git", "clone", "--", url, dir)
}

// cloneFailedExit is what the git CLI returns for fatal clone errors.
const cloneFailedExit = 128

// GoGitCloner clones in-process with go-git. Progress is streamed as
// output; a failure is reported on stderr with exit code 128.
type GoGitCloner struct{}

func (GoGitCloner) Clone(ctx context.Context, url, dir string) *Execution {
	return NewExecution(ctx, func(ctx context.Context, stdout, stderr io.Writer) (int, error) {
		_, _ = fmt.Fprintf(stdout, "Cloning into '%s'...\n", dir)
		_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:      url,
			Progress: stdout,
		})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "fatal: %v\n", err)
			return cloneFailedExit, nil
		}
		return 0, nil
	})
}

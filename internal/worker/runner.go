package worker

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// Runner starts external commands.
type Runner interface {
	Command(ctx context.Context, dir, name string, args ...string) *Execution
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	// Env is appended to the parent environment.
	Env []string
	// WaitDelay bounds how long output is drained after the process exits,
	// for commands that leave background children holding the pipes.
	WaitDelay time.Duration
}

// Command implements Runner.
func (r ExecRunner) Command(ctx context.Context, dir, name string, args ...string) *Execution {
	return NewExecution(ctx, func(ctx context.Context, stdout, stderr io.Writer) (int, error) {
		// #nosec G204 -- commands are fixed by the pipeline or operator configuration
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), r.Env...)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		cmd.WaitDelay = r.WaitDelay
		if cmd.WaitDelay == 0 {
			cmd.WaitDelay = 5 * time.Second
		}

		err := cmd.Run()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		if err != nil {
			return -1, err
		}
		return 0, nil
	})
}

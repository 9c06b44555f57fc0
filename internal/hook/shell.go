package hook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ShellScript is the shell hook file name.
const ShellScript = "helper_script.sh"

// DefaultShellTimeout bounds a shell hook when no timeout is configured.
const DefaultShellTimeout = 5 * time.Minute

// ShellRunner interprets helper_script.sh in-process with $1 set to the
// target directory, which is also its working directory.
type ShellRunner struct {
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer

	logger *slog.Logger
}

// NewShellRunner creates a ShellRunner. A non-positive timeout uses
// DefaultShellTimeout.
func NewShellRunner(timeout time.Duration, logger *slog.Logger) *ShellRunner {
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ShellRunner{
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		logger:  logger,
	}
}

func (r *ShellRunner) Script() string {
	return ShellScript
}

// Run executes the script. A non-zero exit status is an error.
func (r *ShellRunner) Run(ctx context.Context, scriptPath, targetDir string) error {
	f, err := os.Open(scriptPath)
	if err != nil {
		return fmt.Errorf("open shell hook: %w", err)
	}
	defer f.Close()

	prog, err := syntax.NewParser().Parse(f, scriptPath)
	if err != nil {
		return fmt.Errorf("parse shell hook: %w", err)
	}

	runner, err := interp.New(
		interp.StdIO(nil, r.Stdout, r.Stderr),
		interp.Env(expand.ListEnviron(os.Environ()...)),
		interp.Dir(targetDir),
		// "--" keeps a target path starting with "-" from being read as an option
		interp.Params("--", targetDir),
	)
	if err != nil {
		return fmt.Errorf("create shell interpreter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	r.logger.Debug("interpreting shell hook", "script", scriptPath, "timeout", r.Timeout)

	if err := runner.Run(ctx, prog); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("shell hook timed out after %s", r.Timeout)
		}
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return fmt.Errorf("shell hook exited with status %d", status)
		}
		return fmt.Errorf("shell hook: %w", err)
	}
	return nil
}

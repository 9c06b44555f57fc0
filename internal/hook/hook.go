// Package hook runs the optional extension scripts a module may ship at its
// root. A hook receives the absolute path of the target tree; its failure is
// reported but never aborts an apply.
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Runner executes one kind of extension script.
type Runner interface {
	// Script returns the file name the runner looks for at a module's root.
	Script() string

	// Run executes the script at scriptPath against targetDir.
	Run(ctx context.Context, scriptPath, targetDir string) error
}

// Result is the outcome of a single hook invocation.
type Result struct {
	// Script is the absolute path of the script that ran.
	Script string

	// Err is nil when the hook completed successfully.
	Err error
}

// OK reports whether the hook succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Dispatcher runs every registered runner whose script exists in a module.
type Dispatcher struct {
	runners []Runner
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher. With no runners, RunAll is a no-op.
func NewDispatcher(logger *slog.Logger, runners ...Runner) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{runners: runners, logger: logger}
}

// Runners returns the registered runners.
func (d *Dispatcher) Runners() []Runner {
	return d.runners
}

// RunAll runs the hooks found in moduleDir, in registration order. Failures
// are logged and returned, never propagated.
func (d *Dispatcher) RunAll(ctx context.Context, moduleDir, targetDir string) []Result {
	var results []Result
	for _, r := range d.runners {
		script := filepath.Join(moduleDir, r.Script())
		info, err := os.Stat(script)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		d.logger.Info("running hook", "script", script)
		err = runSafely(ctx, r, script, targetDir)
		if err != nil {
			d.logger.Warn("hook failed", "script", script, "error", err)
		}
		results = append(results, Result{Script: script, Err: err})
	}
	return results
}

func runSafely(ctx context.Context, r Runner, script, targetDir string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook %s panicked: %v", filepath.Base(script), p)
		}
	}()
	return r.Run(ctx, script, targetDir)
}

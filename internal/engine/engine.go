// Package engine provides the core business logic for modapply operations.
//
// The engine package is the orchestration layer between CLI commands and the
// lower-level adapters. It drives the apply workflow (clone, merge-copy,
// patch, hook, log) and its inverse, clean, which is driven entirely by the
// applied-paths log.
//
// Key components:
//   - Engine: Main orchestrator that coordinates all operations
//   - Apply: Runs the apply state machine over every manifest entry
//   - Clean: Rolls back the last apply from its log
//   - Status: Read-only view of the applied-paths log
package engine

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/modapply/internal/applylog"
	"github.com/danieljhkim/modapply/internal/clock"
	"github.com/danieljhkim/modapply/internal/config"
	"github.com/danieljhkim/modapply/internal/fsops"
	"github.com/danieljhkim/modapply/internal/gitx"
	"github.com/danieljhkim/modapply/internal/hook"
)

// Engine orchestrates all modapply operations.
// It is the main API surface called by the CLI.
type Engine struct {
	git      gitx.SourceControl
	fs       fsops.FS
	hooks    *hook.Dispatcher
	logStore applylog.Store
	clock    clock.Clock
	paths    config.Paths
	logger   *slog.Logger
}

// New creates a new Engine with the given dependencies. A nil hooks
// dispatcher disables hooks; a nil logger discards output.
func New(
	git gitx.SourceControl,
	fs fsops.FS,
	hooks *hook.Dispatcher,
	logStore applylog.Store,
	clk clock.Clock,
	paths config.Paths,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if hooks == nil {
		hooks = hook.NewDispatcher(logger)
	}
	return &Engine{
		git:      git,
		fs:       fs,
		hooks:    hooks,
		logStore: logStore,
		clock:    clk,
		paths:    paths,
		logger:   logger,
	}
}

// Paths returns the paths the engine operates on.
func (e *Engine) Paths() config.Paths {
	return e.paths
}

// relToTarget returns path relative to the target root, or an error if it
// does not lie strictly inside it.
func (e *Engine) relToTarget(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be absolute: %s", path)
	}
	rel, err := filepath.Rel(e.paths.TargetRoot, filepath.Clean(path))
	if err != nil {
		return "", err
	}
	if err := e.fs.ValidateRelPath(rel); err != nil {
		return "", err
	}
	return rel, nil
}

// rootOf classifies a target path by the top-level tree it belongs to.
func (e *Engine) rootOf(path string) string {
	rel, err := e.relToTarget(path)
	if err != nil {
		return RootOther
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	switch first {
	case RootModules, RootThirdParty:
		return first
	default:
		return RootOther
	}
}

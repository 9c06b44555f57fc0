package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danieljhkim/modapply/internal/applylog"
	"github.com/danieljhkim/modapply/internal/manifest"
)

// Subdirectories a module repository may carry.
const (
	moduleModulesDir    = "modules"
	moduleThirdPartyDir = "thirdparty"
	modulePatchesDir    = "patches"
)

// applyRun carries the state of one Apply call.
type applyRun struct {
	req     *ApplyRequest
	result  *ApplyResult
	applied applylog.Log

	// created holds the paths that did not exist before this run. Only
	// these are removed by a rollback.
	created map[string]bool

	// roots are modules/ or thirdparty/ directories this run had to create.
	roots []string
}

// Apply applies every module listed in the manifest to the target tree.
//
// Algorithm:
// 1. Check preconditions: manifest, target directory, git (no mutation)
// 2. Replace any stale workspace with a fresh one
// 3. Clone every manifest entry into the workspace, in manifest order
// 4. For each clone: merge modules/ and thirdparty/, apply patches, run hooks
// 5. Remove the workspace and persist the applied-paths log
//
// Precondition, clone and merge failures are fatal. Patch and hook failures
// are reported in the result; with req.Strict they also produce ErrBestEffort.
// The result is returned alongside any error; a fatal error leaves it in StateFailed.
func (e *Engine) Apply(ctx context.Context, req *ApplyRequest) (*ApplyResult, error) {
	start := e.clock.Now()
	run := &applyRun{
		req:     req,
		created: make(map[string]bool),
		result: &ApplyResult{
			Applied: []string{},
			Modules: []ModuleReport{},
			State:   StateInit,
		},
	}

	err := e.apply(ctx, run)
	run.result.Duration = e.clock.Since(start)
	if err != nil {
		e.logger.Error("apply failed", "state", run.result.State, "error", err)
		run.result.State = StateFailed
		return run.result, err
	}

	if req.Strict && run.result.HasFailures() {
		return run.result, fmt.Errorf("%w: %d patch failure(s), %d hook failure(s)",
			ErrBestEffort, len(run.result.PatchFailures), len(run.result.HookFailures))
	}
	return run.result, nil
}

func (e *Engine) apply(ctx context.Context, run *applyRun) error {
	// Step 1: Preconditions
	manifestPath := run.req.ManifestPath
	if manifestPath == "" {
		manifestPath = e.paths.Manifest
	}
	sources, err := manifest.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrManifestNotFound, err)
	}
	if !e.fs.DirExists(e.paths.TargetRoot) {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, e.paths.TargetRoot)
	}
	if err := e.git.Available(); err != nil {
		return fmt.Errorf("%w: %v", ErrToolMissing, err)
	}

	// Step 2: Workspace
	if err := e.prepareWorkspace(); err != nil {
		return err
	}
	e.transition(run, StateWorkspacePrepared)

	// Step 3: Fetch
	for src, err := range sources {
		if err != nil {
			return fmt.Errorf("failed to read modules file: %w", err)
		}
		e.logger.Info("cloning module", "repository", src.Repository, "branch", src.Branch)
		if _, err := e.git.Clone(ctx, e.paths.Workspace, src); err != nil {
			// The workspace is left in place; the next run removes it as stale.
			return fmt.Errorf("%w: %v", ErrClone, err)
		}
	}
	e.transition(run, StateModulesFetched)

	// Step 4: Per-module phase
	names, err := e.fs.ReadDir(e.paths.Workspace)
	if err != nil {
		return fmt.Errorf("%w: failed to list workspace: %v", ErrWorkspace, err)
	}
	for _, name := range names {
		moduleDir := filepath.Join(e.paths.Workspace, name)
		if err := e.fs.ValidateIdentifier(name); err != nil || !e.fs.DirExists(moduleDir) {
			continue
		}
		if err := e.applyModule(ctx, run, name, moduleDir); err != nil {
			e.rollback(run)
			return err
		}
	}

	// Step 5: Persist
	if err := e.fs.RemoveAll(e.paths.Workspace); err != nil {
		e.logger.Warn("failed to remove workspace", "path", e.paths.Workspace, "error", err)
	}
	// Created roots go last so clean empties them before removing them.
	run.applied.Add(run.roots...)
	run.result.Applied = append(run.result.Applied, run.roots...)
	if err := e.logStore.Save(&run.applied); err != nil {
		e.rollback(run)
		return fmt.Errorf("failed to persist applied-paths log: %w", err)
	}
	run.result.LogPath = e.logStore.Path()
	e.transition(run, StateLogPersisted)

	e.transition(run, StateDone)
	e.logger.Info("apply complete",
		"modules", len(run.result.Modules),
		"paths", len(run.result.Applied),
		"patch_failures", len(run.result.PatchFailures),
		"hook_failures", len(run.result.HookFailures))
	return nil
}

// prepareWorkspace removes a stale workspace and creates a fresh one.
func (e *Engine) prepareWorkspace() error {
	ws := e.paths.Workspace

	exists, err := e.fs.Exists(ws)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWorkspace, err)
	}
	if exists {
		e.logger.Info("removing stale workspace", "path", ws)
		if err := e.fs.RemoveAll(ws); err != nil {
			return fmt.Errorf("%w: failed to remove stale workspace: %v", ErrWorkspace, err)
		}
	}

	if err := e.fs.Mkdir(ws); err != nil {
		e.logger.Debug("mkdir workspace", "path", ws, "error", err)
	}
	if !e.fs.DirExists(ws) {
		return fmt.Errorf("%w: could not create %s", ErrWorkspace, ws)
	}
	return nil
}

// applyModule runs the merge, patch and hook steps for one clone.
func (e *Engine) applyModule(ctx context.Context, run *applyRun, name, moduleDir string) error {
	logger := e.logger.With("module", name)
	report := ModuleReport{Name: name}
	target := e.paths.TargetRoot

	written, err := e.mergeTree(run, filepath.Join(moduleDir, moduleModulesDir), e.paths.ModulesDir())
	if err != nil {
		return fmt.Errorf("%w: module %s: %w", ErrMerge, name, err)
	}
	report.Modules = written
	e.transition(run, StateMergedModules)

	written, err = e.mergeTree(run, filepath.Join(moduleDir, moduleThirdPartyDir), e.paths.ThirdPartyDir())
	if err != nil {
		return fmt.Errorf("%w: module %s: %w", ErrMerge, name, err)
	}
	report.ThirdParty = written
	e.transition(run, StateMergedThirdParty)

	if patches := filepath.Join(moduleDir, modulePatchesDir); e.fs.DirExists(patches) {
		for _, res := range e.git.ApplyPatches(ctx, patches, target) {
			report.Patches++
			if res.OK() {
				logger.Debug("patch applied", "patch", filepath.Base(res.Patch))
				continue
			}
			logger.Warn("patch failed", "patch", filepath.Base(res.Patch), "error", res.Err)
			run.result.PatchFailures = append(run.result.PatchFailures, Failure{
				Module: name,
				Item:   filepath.Base(res.Patch),
				Error:  res.Err.Error(),
			})
		}
	}
	e.transition(run, StatePatchesApplied)

	for _, res := range e.hooks.RunAll(ctx, moduleDir, target) {
		report.Hooks++
		if res.OK() {
			continue
		}
		run.result.HookFailures = append(run.result.HookFailures, Failure{
			Module: name,
			Item:   filepath.Base(res.Script),
			Error:  res.Err.Error(),
		})
	}
	e.transition(run, StateHookRun)

	run.result.Modules = append(run.result.Modules, report)
	return nil
}

// mergeTree merge-copies src into dst when src exists and records what was
// written, including the partial output of a failed copy. Destinations that
// did not exist beforehand are remembered for rollback.
func (e *Engine) mergeTree(run *applyRun, src, dst string) ([]string, error) {
	if !e.fs.DirExists(src) {
		return nil, nil
	}

	if !e.fs.DirExists(dst) {
		if err := e.fs.MkdirAll(dst, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dst, err)
		}
		run.roots = append(run.roots, dst)
		run.created[dst] = true
	}

	names, err := e.fs.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", src, err)
	}
	fresh := make(map[string]bool, len(names))
	for _, name := range names {
		path := filepath.Join(dst, name)
		found, err := e.fs.Exists(path)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", path, err)
		}
		fresh[path] = !found
	}

	written, err := e.fs.MergeCopy(src, dst, run.req.Force)
	for _, path := range written {
		if fresh[path] {
			run.created[path] = true
		}
	}
	run.applied.Add(written...)
	run.result.Applied = append(run.result.Applied, written...)
	if err != nil {
		return written, err
	}
	e.logger.Debug("merged tree", "from", src, "to", dst, "entries", len(written))
	return written, nil
}

// rollback undoes a run after a fatal failure: paths this run created are
// removed in reverse order, along with the workspace. Entries that existed
// before the run and were overwritten under force are left in place. Patches
// and hook side effects are not undone. No log is written.
func (e *Engine) rollback(run *applyRun) {
	paths := run.applied.Paths
	for i := len(paths) - 1; i >= 0; i-- {
		path := paths[i]
		if !run.created[path] {
			e.logger.Warn("entry existed before this run and was overwritten, leaving it", "path", path)
			continue
		}
		if err := e.fs.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("failed to roll back path", "path", path, "error", err)
		}
	}
	for i := len(run.roots) - 1; i >= 0; i-- {
		if err := e.fs.RemoveAll(run.roots[i]); err != nil {
			e.logger.Warn("failed to roll back path", "path", run.roots[i], "error", err)
		}
	}
	if err := e.fs.RemoveAll(e.paths.Workspace); err != nil {
		e.logger.Warn("failed to remove workspace", "path", e.paths.Workspace, "error", err)
	}
	run.result.Applied = []string{}
	run.applied = applylog.Log{}
}

func (e *Engine) transition(run *applyRun, next ApplyState) {
	e.logger.Debug("apply state", "from", run.result.State, "to", next)
	run.result.State = next
}

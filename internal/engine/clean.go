package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Clean reverses the last apply using the applied-paths log.
//
// Algorithm:
// 1. Require the log to exist
// 2. Restore tracked files in the target (failure only warns)
// 3. Remove every logged path that lies inside the target, in log order
// 4. Delete the log
//
// Patches to untracked files and hook side effects are not undone. If any
// removal fails, the log is kept so clean can be retried.
func (e *Engine) Clean(ctx context.Context) (*CleanResult, error) {
	// Step 1: Precondition
	if !e.logStore.Exists() {
		return nil, fmt.Errorf("%w: %s does not exist", ErrNoPriorApply, e.logStore.Path())
	}

	result := &CleanResult{Removed: []string{}}

	// Step 2: Restore tracked files
	if err := e.git.Restore(ctx, e.paths.TargetRoot); err != nil {
		e.logger.Warn("failed to restore target", "path", e.paths.TargetRoot, "error", err)
		result.RestoreError = err.Error()
	}

	// Step 3: Remove logged paths
	log, err := e.logStore.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoPriorApply, e.logStore.Path())
		}
		return nil, err
	}

	var removeErrs []error
	seen := make(map[string]bool, len(log.Paths))
	for _, path := range log.Paths {
		if seen[path] {
			continue
		}
		seen[path] = true

		if _, err := e.relToTarget(path); err != nil {
			e.logger.Warn("refusing to remove path outside target", "path", path, "error", err)
			result.Rejected = append(result.Rejected, path)
			continue
		}

		exists, err := e.fs.Exists(path)
		if err != nil {
			removeErrs = append(removeErrs, fmt.Errorf("failed to check %s: %w", path, err))
			continue
		}
		if !exists {
			e.logger.Warn("path does not exist, skipping", "path", path)
			result.Missing = append(result.Missing, path)
			continue
		}

		if err := e.fs.RemoveAll(path); err != nil {
			removeErrs = append(removeErrs, fmt.Errorf("failed to remove %s: %w", path, err))
			continue
		}
		e.logger.Debug("removed", "path", path)
		result.Removed = append(result.Removed, path)
	}
	if len(removeErrs) > 0 {
		return result, errors.Join(removeErrs...)
	}

	// Step 4: Delete the log
	if err := e.logStore.Delete(); err != nil {
		return result, err
	}

	e.logger.Info("clean complete", "removed", len(result.Removed), "missing", len(result.Missing))
	return result, nil
}

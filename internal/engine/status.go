package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Status reports whether an apply is in effect and which logged paths are
// still present. It never modifies the target.
func (e *Engine) Status(ctx context.Context) (*StatusResult, error) {
	result := &StatusResult{
		TargetRoot: e.paths.TargetRoot,
		LogPath:    e.logStore.Path(),
		Entries:    []PathStatus{},
	}

	log, err := e.logStore.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to load applied-paths log: %w", err)
	}
	result.Applied = true

	for _, path := range log.Paths {
		exists, err := e.fs.Exists(path)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", path, err)
		}
		result.Entries = append(result.Entries, PathStatus{
			Path:   path,
			Root:   e.rootOf(path),
			Exists: exists,
		})
	}

	return result, nil
}

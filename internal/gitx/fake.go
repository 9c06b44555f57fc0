package gitx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danieljhkim/modapply/internal/manifest"
)

// FakeSourceControl is a test double that "clones" by copying fixture
// directories and records every call.
type FakeSourceControl struct {
	// Fixtures maps a repository URL to a local directory copied on clone.
	Fixtures map[string]string

	CloneCalls   []CloneCall
	RestoreCalls []string
	PatchCalls   []PatchCall

	// Configurable responses
	AvailableErr error
	CloneErrs    map[string]error
	RestoreErr   error
	// PatchErrs maps a patch file name to the error its application returns.
	PatchErrs map[string]error
}

// CloneCall records a Clone invocation.
type CloneCall struct {
	WorkspaceDir string
	Source       manifest.Source
}

// PatchCall records a single patch application.
type PatchCall struct {
	Patch     string
	TargetDir string
}

// NewFakeSourceControl creates a FakeSourceControl with no fixtures.
func NewFakeSourceControl() *FakeSourceControl {
	return &FakeSourceControl{
		Fixtures:  make(map[string]string),
		CloneErrs: make(map[string]error),
		PatchErrs: make(map[string]error),
	}
}

// AddFixture registers dir as the content of repository.
func (f *FakeSourceControl) AddFixture(repository, dir string) {
	f.Fixtures[repository] = dir
}

func (f *FakeSourceControl) Available() error {
	return f.AvailableErr
}

func (f *FakeSourceControl) Clone(ctx context.Context, workspaceDir string, src manifest.Source) (string, error) {
	f.CloneCalls = append(f.CloneCalls, CloneCall{WorkspaceDir: workspaceDir, Source: src})

	if info, err := os.Stat(workspaceDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrWorkspaceMissing, workspaceDir)
	}
	if err := f.CloneErrs[src.Repository]; err != nil {
		return "", err
	}

	fixture, ok := f.Fixtures[src.Repository]
	if !ok {
		return "", fmt.Errorf("failed to clone %s: repository not found", src)
	}

	name, err := DirName(src.Repository)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(workspaceDir, name)
	if _, err := os.Lstat(dest); err == nil {
		return "", fmt.Errorf("%w: %s", ErrCloneExists, dest)
	}

	if err := os.CopyFS(dest, os.DirFS(fixture)); err != nil {
		return "", fmt.Errorf("failed to clone %s: %w", src, err)
	}
	return dest, nil
}

func (f *FakeSourceControl) Restore(ctx context.Context, dir string) error {
	f.RestoreCalls = append(f.RestoreCalls, dir)
	return f.RestoreErr
}

func (f *FakeSourceControl) ApplyPatches(ctx context.Context, patchesDir, targetDir string) []PatchResult {
	patches, err := ListPatches(patchesDir)
	if err != nil {
		return []PatchResult{{Patch: patchesDir, Err: err}}
	}

	results := make([]PatchResult, 0, len(patches))
	for _, patch := range patches {
		f.PatchCalls = append(f.PatchCalls, PatchCall{Patch: patch, TargetDir: targetDir})
		results = append(results, PatchResult{Patch: patch, Err: f.PatchErrs[filepath.Base(patch)]})
	}
	return results
}

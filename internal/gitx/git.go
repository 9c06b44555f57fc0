// Package gitx wraps the version-control operations the apply and clean
// workflows need: cloning module repositories into the workspace, restoring
// the target's tracked files, and applying patch files to the target.
package gitx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/danieljhkim/modapply/internal/manifest"
)

// PatchSuffix marks files in a module's patches directory that are applied.
const PatchSuffix = ".patch"

var (
	// ErrGitNotFound indicates the git binary is not on PATH.
	ErrGitNotFound = errors.New("git command not found")

	// ErrWorkspaceMissing indicates the clone destination directory does not exist.
	ErrWorkspaceMissing = errors.New("workspace directory does not exist")

	// ErrCloneExists indicates a clone would land on an existing directory.
	ErrCloneExists = errors.New("clone destination already exists")
)

// SourceControl provides the git operations used by the engine.
type SourceControl interface {
	// Available returns an error if the git tool cannot be used.
	Available() error

	// Clone recursively clones src into a new subdirectory of workspaceDir,
	// pinned to src.Branch when set, and returns the clone directory.
	Clone(ctx context.Context, workspaceDir string, src manifest.Source) (string, error)

	// Restore discards uncommitted modifications to tracked files in dir.
	Restore(ctx context.Context, dir string) error

	// ApplyPatches applies every patch file in patchesDir to targetDir in
	// sorted file-name order, so a numeric prefix fixes the sequence.
	// Patches are independent: a failure is reported in its result and the
	// remaining patches are still applied.
	ApplyPatches(ctx context.Context, patchesDir, targetDir string) []PatchResult
}

// PatchResult is the outcome of applying a single patch file.
type PatchResult struct {
	// Patch is the absolute path of the patch file.
	Patch string

	// Err is nil when the patch applied cleanly.
	Err error
}

// OK reports whether the patch applied.
func (r PatchResult) OK() bool {
	return r.Err == nil
}

// RealGit implements SourceControl with go-git for clones and the git
// binary for restore and apply.
type RealGit struct {
	binary string
	logger *slog.Logger
}

// NewRealGit creates a new RealGit. A nil logger discards output.
func NewRealGit(logger *slog.Logger) *RealGit {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RealGit{
		binary: "git",
		logger: logger,
	}
}

// Available checks that git is on PATH.
func (g *RealGit) Available() error {
	if _, err := exec.LookPath(g.binary); err != nil {
		return fmt.Errorf("%w: %v", ErrGitNotFound, err)
	}
	return nil
}

// Clone clones src into workspaceDir/<DirName(src.Repository)>.
func (g *RealGit) Clone(ctx context.Context, workspaceDir string, src manifest.Source) (string, error) {
	info, err := os.Stat(workspaceDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrWorkspaceMissing, workspaceDir)
	}

	name, err := DirName(src.Repository)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(workspaceDir, name)
	if _, err := os.Lstat(dest); err == nil {
		return "", fmt.Errorf("%w: %s", ErrCloneExists, dest)
	}

	g.logger.Debug("cloning module", "repository", src.Repository, "branch", src.Branch, "dest", dest)

	refs := []plumbing.ReferenceName{""}
	if src.Branch != "" {
		// git clone -b accepts both branches and tags
		refs = []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName(src.Branch),
			plumbing.NewTagReferenceName(src.Branch),
		}
	}

	var lastErr error
	for _, ref := range refs {
		_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
			URL:               src.Repository,
			Auth:              authFor(src.Repository),
			ReferenceName:     ref,
			SingleBranch:      ref != "",
			RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		})
		if err == nil {
			return dest, nil
		}
		lastErr = err
		_ = os.RemoveAll(dest)
		if !isRefNotFound(err) {
			break
		}
	}

	return "", fmt.Errorf("failed to clone %s: %w", src, lastErr)
}

// Restore runs `git restore .` in dir.
func (g *RealGit) Restore(ctx context.Context, dir string) error {
	if _, err := g.runGit(ctx, dir, "restore", "."); err != nil {
		return fmt.Errorf("failed to restore %s: %w", dir, err)
	}
	return nil
}

// ApplyPatches applies each *.patch file in patchesDir, in name order, with
// whitespace differences ignored.
func (g *RealGit) ApplyPatches(ctx context.Context, patchesDir, targetDir string) []PatchResult {
	patches, err := ListPatches(patchesDir)
	if err != nil {
		return []PatchResult{{Patch: patchesDir, Err: err}}
	}

	results := make([]PatchResult, 0, len(patches))
	for _, patch := range patches {
		_, err := g.runGit(ctx, targetDir, "apply", "--ignore-space-change", "--ignore-whitespace", patch)
		if err != nil {
			err = fmt.Errorf("failed to apply %s: %w", filepath.Base(patch), err)
		}
		results = append(results, PatchResult{Patch: patch, Err: err})
	}
	return results
}

func isRefNotFound(err error) bool {
	return errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, git.NoMatchingRefSpecError{})
}

// runGit executes a git command in dir and returns its trimmed stdout.
func (g *RealGit) runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	g.logger.Debug("running git", "dir", dir, "args", args)

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w\nstderr: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}

// ListPatches returns the absolute paths of the patch files in dir, sorted by name.
func ListPatches(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read patches directory: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var patches []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), PatchSuffix) {
			continue
		}
		patches = append(patches, filepath.Join(absDir, entry.Name()))
	}
	return patches, nil
}

// DirName returns the directory name git would pick for a clone of
// repository: the last path component without a trailing ".git".
func DirName(repository string) (string, error) {
	s := strings.TrimSpace(repository)
	s = strings.TrimRight(s, `/\`)
	s = strings.TrimSuffix(s, "/.git")
	s = strings.TrimRight(s, `/\`)

	if i := strings.LastIndexAny(s, `/\:`); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, ".git")
	s = strings.TrimSuffix(s, ".bundle")

	if s == "" || s == "." || s == ".." {
		return "", fmt.Errorf("cannot derive a directory name from repository %q", repository)
	}
	return s, nil
}

// authFor picks credentials for url: SSH keys for ssh URLs, tokens from the
// environment for HTTP(S) URLs, and nothing for local paths.
func authFor(url string) transport.AuthMethod {
	switch {
	case strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://"):
		return trySSHAuth()
	case strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://"):
		return tryHTTPAuth()
	default:
		return nil
	}
}

func trySSHAuth() transport.AuthMethod {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	for _, key := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		keyPath := filepath.Join(homeDir, ".ssh", key)
		if _, err := os.Stat(keyPath); err != nil {
			continue
		}
		if auth, err := ssh.NewPublicKeysFromFile("git", keyPath, ""); err == nil {
			return auth
		}
	}

	return nil
}

func tryHTTPAuth() transport.AuthMethod {
	tokens := []struct {
		env      string
		username string
	}{
		{"GITHUB_TOKEN", "x-access-token"},
		{"GITLAB_TOKEN", "gitlab-ci-token"},
		{"GIT_TOKEN", "git"},
	}

	for _, tok := range tokens {
		if value := os.Getenv(tok.env); value != "" {
			return &http.BasicAuth{Username: tok.username, Password: value}
		}
	}

	return nil
}

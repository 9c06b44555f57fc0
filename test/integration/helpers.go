// Package integration exercises apply and clean end to end against real git
// repositories on the local filesystem.
package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/modapply/internal/applylog"
	"github.com/danieljhkim/modapply/internal/clock"
	"github.com/danieljhkim/modapply/internal/config"
	"github.com/danieljhkim/modapply/internal/engine"
	"github.com/danieljhkim/modapply/internal/fsops"
	"github.com/danieljhkim/modapply/internal/gitx"
	"github.com/danieljhkim/modapply/internal/hook"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// git runs a git command in dir with a throwaway identity.
func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	full := append([]string{
		"-c", "user.email=test@example.com",
		"-c", "user.name=Test User",
		"-c", "commit.gpgsign=false",
	}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// commitAll writes files into repo and commits them.
func commitAll(t *testing.T, repo string, files map[string]string, msg string) {
	t.Helper()
	for rel, content := range files {
		writeFile(t, filepath.Join(repo, filepath.FromSlash(rel)), content)
	}
	git(t, repo, "add", ".")
	git(t, repo, "commit", "-q", "-m", msg)
}

// newRepo creates a repository named name on branch main with files committed.
func newRepo(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	repo := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(repo, 0755))
	git(t, repo, "init", "-q")
	git(t, repo, "symbolic-ref", "HEAD", "refs/heads/main")
	commitAll(t, repo, files, "initial")
	return repo
}

// newTarget creates a committed target tree that already has a module and a
// third-party library.
func newTarget(t *testing.T) string {
	t.Helper()
	return newRepo(t, "engine", map[string]string{
		"README.md":                "engine\n",
		"modules/core/SCsub":       "core\n",
		"thirdparty/zlib/zlib.h":   "zlib\n",
		".gitignore":               ".modapply-tmp/\n",
		"modules/core/register.py": "core = True\n",
	})
}

// writeManifest writes the default manifest into target.
func writeManifest(t *testing.T, target string, lines ...string) {
	t.Helper()
	writeFile(t, filepath.Join(target, "modules_file.txt"), strings.Join(lines, "\n")+"\n")
}

// newEngine wires the real git, filesystem and hook implementations for target.
func newEngine(t *testing.T, target string) *engine.Engine {
	t.Helper()
	requireGit(t)

	paths, err := config.ResolvePaths(&config.Settings{}, target)
	require.NoError(t, err)

	fs := fsops.NewRealFS()
	runner := hook.NewShellRunner(30*time.Second, nil)
	runner.Stdout = os.Stderr

	return engine.New(
		gitx.NewRealGit(nil),
		fs,
		hook.NewDispatcher(nil, hook.NewLuaRunner(nil), runner),
		applylog.NewFileStore(fs, paths.AppliedLog),
		clock.RealClock{},
		*paths,
		nil,
	)
}

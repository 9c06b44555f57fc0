package engine

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/modapply/internal/applylog"
	"github.com/danieljhkim/modapply/internal/clock"
	"github.com/danieljhkim/modapply/internal/config"
	"github.com/danieljhkim/modapply/internal/fsops"
	"github.com/danieljhkim/modapply/internal/gitx"
	"github.com/danieljhkim/modapply/internal/hook"
)

// harness is a real target tree on disk with fake clones.
type harness struct {
	t        *testing.T
	target   string
	paths    config.Paths
	git      *gitx.FakeSourceControl
	fs       fsops.FS
	logStore *applylog.FileStore
	clock    *clock.FakeClock
	hooks    *hook.Dispatcher
	fixtures string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	target := t.TempDir()
	writeFile(t, filepath.Join(target, "modules", "core", "SCsub"), "core")
	writeFile(t, filepath.Join(target, "thirdparty", "zlib", "zlib.h"), "zlib")
	writeFile(t, filepath.Join(target, "README.md"), "engine")

	paths, err := config.ResolvePaths(&config.Settings{}, target)
	require.NoError(t, err)

	fs := fsops.NewRealFS()
	clk := clock.NewFakeClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
	clk.Step = time.Second

	return &harness{
		t:        t,
		target:   target,
		paths:    *paths,
		git:      gitx.NewFakeSourceControl(),
		fs:       fs,
		logStore: applylog.NewFileStore(fs, paths.AppliedLog),
		clock:    clk,
		hooks:    hook.NewDispatcher(nil, hook.NewLuaRunner(nil), hook.NewShellRunner(10*time.Second, nil)),
		fixtures: t.TempDir(),
	}
}

func (h *harness) engine() *Engine {
	return New(h.git, h.fs, h.hooks, h.logStore, h.clock, h.paths, nil)
}

// addModule registers a fake repository whose content is files (relative path to content).
func (h *harness) addModule(repo string, files map[string]string) {
	h.t.Helper()
	name, err := gitx.DirName(repo)
	require.NoError(h.t, err)

	dir := filepath.Join(h.fixtures, name)
	require.NoError(h.t, os.MkdirAll(dir, 0755))
	for rel, content := range files {
		writeFile(h.t, filepath.Join(dir, rel), content)
	}
	h.git.AddFixture(repo, dir)
}

func (h *harness) writeManifest(lines ...string) {
	h.t.Helper()
	writeFile(h.t, h.paths.Manifest, strings.Join(lines, "\n")+"\n")
}

func (h *harness) path(rel ...string) string {
	return filepath.Join(append([]string{h.target}, rel...)...)
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

// entries returns the sorted entry names of dir.
func entries(t *testing.T, dir string) []string {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, e := range list {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// failingFS wraps a real FS and fails RemoveAll for one path.
type failingFS struct {
	fsops.FS
	failRemove string
}

func (f *failingFS) RemoveAll(path string) error {
	if path == f.failRemove {
		return errors.New("permission denied")
	}
	return f.FS.RemoveAll(path)
}

// mergeFailFS wraps a real FS and fails MergeCopy for trees of one module.
type mergeFailFS struct {
	fsops.FS
	module string
}

func (f *mergeFailFS) MergeCopy(from, to string, overwrite bool) ([]string, error) {
	sep := string(filepath.Separator)
	if strings.Contains(from, sep+f.module+sep) {
		return nil, errors.New("disk full")
	}
	return f.FS.MergeCopy(from, to, overwrite)
}

// failingStore wraps a log store and fails every Save.
type failingStore struct {
	applylog.Store
	saveErr error
}

func (s *failingStore) Save(log *applylog.Log) error {
	return s.saveErr
}

package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/modapply/internal/fsops"
)

func TestApply_TwoModules(t *testing.T) {
	h := newHarness(t)
	h.addModule("https://example/modA", map[string]string{
		"modules/alpha/SCsub":    "alpha",
		"thirdparty/libA/libA.h": "libA",
		"README.md":              "not copied",
	})
	h.addModule("https://example/modB", map[string]string{
		"modules/beta/SCsub":     "beta",
		"patches/0001-fix.patch": "diff",
		"patches/notes.txt":      "ignored",
	})
	h.writeManifest(
		"# modules for this checkout",
		"https://example/modA",
		"",
		"https://example/modB main",
	)

	result, err := h.engine().Apply(context.Background(), &ApplyRequest{})
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
	assert.ElementsMatch(t, []string{
		h.path("modules", "alpha"),
		h.path("thirdparty", "libA"),
		h.path("modules", "beta"),
	}, result.Applied)
	assert.Len(t, result.Modules, 2)
	assert.Empty(t, result.PatchFailures)
	assert.Equal(t, time.Second, result.Duration)
	assert.Equal(t, h.paths.AppliedLog, result.LogPath)

	// Clones happen in manifest order with the branch passed through.
	require.Len(t, h.git.CloneCalls, 2)
	assert.Equal(t, "https://example/modA", h.git.CloneCalls[0].Source.Repository)
	assert.Equal(t, "", h.git.CloneCalls[0].Source.Branch)
	assert.Equal(t, "main", h.git.CloneCalls[1].Source.Branch)

	// Only *.patch files are applied, against the target.
	require.Len(t, h.git.PatchCalls, 1)
	assert.Equal(t, "0001-fix.patch", filepath.Base(h.git.PatchCalls[0].Patch))
	assert.Equal(t, h.target, h.git.PatchCalls[0].TargetDir)

	assert.Equal(t, []string{"alpha", "beta", "core"}, entries(t, h.path("modules")))
	assert.Equal(t, []string{"libA", "zlib"}, entries(t, h.path("thirdparty")))
	assert.Equal(t, "alpha", readFile(t, h.path("modules", "alpha", "SCsub")))
	assert.Equal(t, "engine", readFile(t, h.path("README.md")))

	assert.False(t, exists(h.paths.Workspace), "workspace is removed after a successful run")

	log, err := h.logStore.Load()
	require.NoError(t, err)
	assert.Equal(t, result.Applied, log.Paths)
}

func TestApply_ThenCleanRestoresEntrySets(t *testing.T) {
	h := newHarness(t)
	h.addModule("https://example/modA", map[string]string{
		"modules/alpha/SCsub":    "alpha",
		"thirdparty/libA/libA.h": "libA",
	})
	h.writeManifest("https://example/modA")

	modulesBefore := entries(t, h.path("modules"))
	thirdPartyBefore := entries(t, h.path("thirdparty"))

	eng := h.engine()
	_, err := eng.Apply(context.Background(), &ApplyRequest{})
	require.NoError(t, err)

	result, err := eng.Clean(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Removed, 2)

	assert.Equal(t, modulesBefore, entries(t, h.path("modules")))
	assert.Equal(t, thirdPartyBefore, entries(t, h.path("thirdparty")))
	assert.Equal(t, []string{h.target}, h.git.RestoreCalls)
	assert.False(t, h.logStore.Exists())
}

func TestApply_Preconditions(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine().Apply(context.Background(), &ApplyRequest{})
		assert.True(t, errors.Is(err, ErrManifestNotFound), "got %v", err)
		assert.False(t, exists(h.paths.Workspace))
		assert.Empty(t, h.git.CloneCalls)
	})

	t.Run("explicit manifest path", func(t *testing.T) {
		h := newHarness(t)
		h.addModule("https://example/modA", map[string]string{"modules/alpha/x": "x"})
		other := filepath.Join(t.TempDir(), "other_modules.txt")
		writeFile(t, other, "https://example/modA\n")

		_, err := h.engine().Apply(context.Background(), &ApplyRequest{ManifestPath: other})
		require.NoError(t, err)
		assert.True(t, exists(h.path("modules", "alpha")))
	})

	t.Run("missing target", func(t *testing.T) {
		h := newHarness(t)
		h.writeManifest("https://example/modA")
		h.paths.TargetRoot = filepath.Join(h.target, "does-not-exist")

		_, err := h.engine().Apply(context.Background(), &ApplyRequest{})
		assert.True(t, errors.Is(err, ErrTargetNotFound), "got %v", err)
	})

	t.Run("git unavailable", func(t *testing.T) {
		h := newHarness(t)
		h.writeManifest("https://example/modA")
		h.git.AvailableErr = errors.New("git command not found")

		result, err := h.engine().Apply(context.Background(), &ApplyRequest{})
		assert.True(t, errors.Is(err, ErrToolMissing), "got %v", err)
		assert.Equal(t, StateFailed, result.State)
		assert.False(t, exists(h.paths.Workspace), "no mutation before preconditions pass")
	})
}

func TestApply_StaleWorkspaceIsReplaced(t *testing.T) {
	h := newHarness(t)
	writeFile(t, filepath.Join(h.paths.Workspace, "leftover", "modules", "stale", "x"), "stale")
	h.addModule("https://example/modA", map[string]string{"modules/alpha/x": "x"})
	h.writeManifest("https://example/modA")

	result, err := h.engine().Apply(context.Background(), &ApplyRequest{})
	require.NoError(t, err)

	assert.Len(t, result.Modules, 1)
	assert.Equal(t, "modA", result.Modules[0].Name)
	assert.False(t, exists(h.path("modules", "stale")), "stale clones are never applied")
	assert.False(t, exists(h.paths.Workspace))
}

func TestApply_WorkspaceCannotBeCreated(t *testing.T) {
	h := newHarness(t)
	h.writeManifest("https://example/modA")
	h.paths.Workspace = filepath.Join(h.target, "missing-parent", "ws")

	_, err := h.engine().Apply(context.Background(), &ApplyRequest{})
	assert.True(t, errors.Is(err, ErrWorkspace), "got %v", err)
}

func TestApply_CloneFailure(t *testing.T) {
	h := newHarness(t)
	h.addModule("https://example/modA", map[string]string{"modules/alpha/x": "x"})
	h.git.CloneErrs["https://example/modB"] = errors.New("remote: repository not found")
	h.writeManifest("https://example/modA", "https://example/modB", "https://example/modC")

	result, err := h.engine().Apply(context.Background(), &ApplyRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClone))
	assert.Equal(t, StateFailed, result.State)

	assert.Len(t, h.git.CloneCalls, 2, "fetching stops at the first failure")
	assert.False(t, exists(h.path("modules", "alpha")), "nothing is merged before every clone succeeds")
	assert.False(t, h.logStore.Exists())
	assert.True(t, exists(h.paths.Workspace), "workspace is left for the next run's stale check")
}

func TestApply_ConflictWithoutForce(t *testing.T) {
	h := newHarness(t)
	h.addModule("https://example/modA", map[string]string{
		"modules/core/SCsub":  "incoming core",
		"modules/gamma/SCsub": "gamma",
	})
	h.writeManifest("https://example/modA")

	result, err := h.engine().Apply(context.Background(), &ApplyRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMerge))
	assert.True(t, errors.Is(err, fsops.ErrConflict))
	assert.Equal(t, StateFailed, result.State)

	assert.Equal(t, "core", readFile(t, h.path("modules", "core", "SCsub")))
	assert.False(t, exists(h.path("modules", "gamma")), "unrelated entries are not modified")
	assert.False(t, h.logStore.Exists())
	assert.False(t, exists(h.paths.Workspace))
}

func TestApply_ConflictRollsBackEarlierModules(t *testing.T) {
	h := newHarness(t)
	h.addModule("https://example/modA", map[string]string{"modules/alpha/SCsub": "alpha"})
	h.addModule("https://example/modB", map[string]string{"thirdparty/zlib/zlib.h": "other zlib"})
	h.writeManifest("https://example/modA", "https://example/modB")

	// Pre-existing log from an earlier run must survive a failed apply.
	writeFile(t, h.paths.AppliedLog, h.path("modules", "previous")+"\n")

	_, err := h.engine().Apply(context.Background(), &ApplyRequest{})
	require.True(t, errors.Is(err, fsops.ErrConflict), "got %v", err)

	assert.False(t, exists(h.path("modules", "alpha")), "paths written by this run are rolled back")
	assert.Equal(t, "zlib", readFile(t, h.path("thirdparty", "zlib", "zlib.h")))
	assert.Equal(t, h.path("modules", "previous")+"\n", readFile(t, h.paths.AppliedLog))
}

func TestApply_ForceRollbackKeepsExistingEntries(t *testing.T) {
	h := newHarness(t)
	h.addModule("https://example/modA", map[string]string{
		"modules/core/extra.py": "extra",
		"modules/alpha/SCsub":   "alpha",
		"thirdparty/libnew/x.h": "x",
	})
	h.addModule("https://example/modB", map[string]string{"modules/beta/SCsub": "beta"})
	h.writeManifest("https://example/modA", "https://example/modB")
	h.fs = &mergeFailFS{FS: h.fs, module: "modB"}

	result, err := h.engine().Apply(context.Background(), &ApplyRequest{Force: true})
	require.ErrorIs(t, err, ErrMerge)
	assert.Equal(t, StateFailed, result.State)
	assert.Empty(t, result.Applied)

	assert.Equal(t, "core", readFile(t, h.path("modules", "core", "SCsub")), "entries that existed before the run survive")
	assert.False(t, exists(h.path("modules", "alpha")))
	assert.False(t, exists(h.path("modules", "beta")))
	assert.False(t, exists(h.path("thirdparty", "libnew")))
	assert.Equal(t, []string{"zlib"}, entries(t, h.path("thirdparty")))
	assert.False(t, exists(h.paths.AppliedLog))
	assert.False(t, exists(h.paths.Workspace))
}

func TestApply_LogPersistFailureRollsBack(t *testing.T) {
	t.Run("store error", func(t *testing.T) {
		h := newHarness(t)
		h.addModule("https://example/modA", map[string]string{
			"modules/alpha/SCsub":    "alpha",
			"thirdparty/libA/libA.h": "libA",
		})
		h.writeManifest("https://example/modA")

		saveErr := errors.New("read-only file system")
		eng := New(h.git, h.fs, h.hooks, &failingStore{Store: h.logStore, saveErr: saveErr}, h.clock, h.paths, nil)

		result, err := eng.Apply(context.Background(), &ApplyRequest{})
		require.ErrorIs(t, err, saveErr)
		assert.Equal(t, StateFailed, result.State)
		assert.Empty(t, result.Applied)
		assert.Equal(t, []string{"core"}, entries(t, h.path("modules")))
		assert.Equal(t, []string{"zlib"}, entries(t, h.path("thirdparty")))
		assert.False(t, exists(h.paths.Workspace))
	})

	t.Run("unloggable path", func(t *testing.T) {
		h := newHarness(t)
		h.addModule("https://example/modA", map[string]string{
			"modules/we\nird/SCsub": "weird",
			"modules/alpha/SCsub":   "alpha",
		})
		h.writeManifest("https://example/modA")

		_, err := h.engine().Apply(context.Background(), &ApplyRequest{})
		require.Error(t, err)
		assert.False(t, exists(h.path("modules", "alpha")))
		assert.False(t, exists(h.path("modules", "we\nird")))
		assert.False(t, exists(h.paths.AppliedLog))

		_, err = h.engine().Clean(context.Background())
		assert.ErrorIs(t, err, ErrNoPriorApply)
	})
}

func TestApply_CreatedRootIsLoggedAndCleaned(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.RemoveAll(h.path("thirdparty")))
	h.addModule("https://example/modA", map[string]string{
		"modules/alpha/SCsub":    "alpha",
		"thirdparty/libA/libA.h": "libA",
	})
	h.writeManifest("https://example/modA")

	result, err := h.engine().Apply(context.Background(), &ApplyRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		h.path("modules", "alpha"),
		h.path("thirdparty", "libA"),
		h.path("thirdparty"),
	}, result.Applied)

	log, err := h.logStore.Load()
	require.NoError(t, err)
	assert.Equal(t, result.Applied, log.Paths)

	cleaned, err := h.engine().Clean(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cleaned.Missing)
	assert.False(t, exists(h.path("thirdparty")))
	assert.Equal(t, []string{"core"}, entries(t, h.path("modules")))
}

func TestApply_ForceOverwrites(t *testing.T) {
	h := newHarness(t)
	h.addModule("https://example/modA", map[string]string{
		"modules/core/SCsub":    "incoming core",
		"modules/core/extra.py": "extra",
	})
	h.writeManifest("https://example/modA")

	result, err := h.engine().Apply(context.Background(), &ApplyRequest{Force: true})
	require.NoError(t, err)

	assert.Equal(t, []string{h.path("modules", "core")}, result.Applied)
	assert.Equal(t, "incoming core", readFile(t, h.path("modules", "core", "SCsub")))
	assert.Equal(t, "extra", readFile(t, h.path("modules", "core", "extra.py")))
}

func TestApply_BestEffortFailures(t *testing.T) {
	setup := func(t *testing.T) *harness {
		h := newHarness(t)
		h.addModule("https://example/modA", map[string]string{
			"modules/alpha/SCsub":  "alpha",
			"patches/0001-a.patch": "a",
			"patches/0002-b.patch": "b",
			"helper_script.sh":     "exit 4\n",
		})
		h.git.PatchErrs["0001-a.patch"] = errors.New("patch does not apply")
		h.writeManifest("https://example/modA")
		return h
	}

	t.Run("default tolerates failures", func(t *testing.T) {
		h := setup(t)
		result, err := h.engine().Apply(context.Background(), &ApplyRequest{})
		require.NoError(t, err)

		require.Len(t, result.PatchFailures, 1)
		assert.Equal(t, Failure{Module: "modA", Item: "0001-a.patch", Error: "patch does not apply"}, result.PatchFailures[0])
		assert.Len(t, h.git.PatchCalls, 2, "a failed patch does not stop the rest")

		require.Len(t, result.HookFailures, 1)
		assert.Equal(t, "helper_script.sh", result.HookFailures[0].Item)
		assert.Equal(t, 2, result.Modules[0].Patches)
		assert.Equal(t, 1, result.Modules[0].Hooks)

		assert.True(t, h.logStore.Exists())
	})

	t.Run("strict reports failures but keeps the log", func(t *testing.T) {
		h := setup(t)
		result, err := h.engine().Apply(context.Background(), &ApplyRequest{Strict: true})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBestEffort))
		assert.Equal(t, StateDone, result.State)

		log, err := h.logStore.Load()
		require.NoError(t, err)
		assert.Equal(t, []string{h.path("modules", "alpha")}, log.Paths)
	})
}

func TestApply_Hooks(t *testing.T) {
	t.Run("shell and lua hooks run against the target", func(t *testing.T) {
		h := newHarness(t)
		h.addModule("https://example/modA", map[string]string{
			"modules/alpha/SCsub": "alpha",
			"helper_script.sh":    "echo \"$1\" > shell_hook.txt\n",
			"helper_script.lua":   "function run(target) end\n",
		})
		h.writeManifest("https://example/modA")

		result, err := h.engine().Apply(context.Background(), &ApplyRequest{})
		require.NoError(t, err)
		assert.Empty(t, result.HookFailures)
		assert.Equal(t, 2, result.Modules[0].Hooks)

		assert.Equal(t, h.target+"\n", readFile(t, h.path("shell_hook.txt")))
		assert.NotContains(t, result.Applied, h.path("shell_hook.txt"), "hook side effects are not logged")
	})

	t.Run("disabled hooks do not run", func(t *testing.T) {
		h := newHarness(t)
		h.hooks = nil
		h.addModule("https://example/modA", map[string]string{
			"helper_script.sh": "echo ran > shell_hook.txt\n",
		})
		h.writeManifest("https://example/modA")

		result, err := h.engine().Apply(context.Background(), &ApplyRequest{})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Modules[0].Hooks)
		assert.False(t, exists(h.path("shell_hook.txt")))
	})
}

func TestApply_EmptyManifest(t *testing.T) {
	h := newHarness(t)
	h.writeManifest("# nothing yet", "")

	result, err := h.engine().Apply(context.Background(), &ApplyRequest{})
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
	assert.Empty(t, result.Modules)

	data, err := os.ReadFile(h.paths.AppliedLog)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestApply_ReplacesPreviousLog(t *testing.T) {
	h := newHarness(t)
	writeFile(t, h.paths.AppliedLog, h.path("modules", "old")+"\n")
	h.addModule("https://example/modA", map[string]string{"modules/alpha/x": "x"})
	h.writeManifest("https://example/modA")

	_, err := h.engine().Apply(context.Background(), &ApplyRequest{})
	require.NoError(t, err)

	log, err := h.logStore.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{h.path("modules", "alpha")}, log.Paths)
}

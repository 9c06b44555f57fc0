package engine

import "time"

// ApplyState is a step of the apply state machine.
type ApplyState string

const (
	StateInit              ApplyState = "init"
	StateWorkspacePrepared ApplyState = "workspace-prepared"
	StateModulesFetched    ApplyState = "modules-fetched"
	StateMergedModules     ApplyState = "merged-modules"
	StateMergedThirdParty  ApplyState = "merged-thirdparty"
	StatePatchesApplied    ApplyState = "patches-applied"
	StateHookRun           ApplyState = "hook-run"
	StateLogPersisted      ApplyState = "log-persisted"
	StateDone              ApplyState = "done"
	StateFailed            ApplyState = "failed"
)

// Top-level target trees a logged path can belong to.
const (
	RootModules    = "modules"
	RootThirdParty = "thirdparty"
	RootOther      = "other"
)

// ApplyResult represents the result of an apply operation.
type ApplyResult struct {
	// Applied lists the target paths written, in order; this is what was logged
	Applied []string `json:"applied"`

	// Modules reports per-module progress, in processing order
	Modules []ModuleReport `json:"modules"`

	// PatchFailures lists patches that did not apply
	PatchFailures []Failure `json:"patch_failures,omitempty"`

	// HookFailures lists hooks that failed
	HookFailures []Failure `json:"hook_failures,omitempty"`

	// Duration is the wall time of the run
	Duration time.Duration `json:"duration"`

	// State is the last state reached
	State ApplyState `json:"state"`

	// LogPath is where the applied-paths log was written
	LogPath string `json:"log_path,omitempty"`
}

// HasFailures reports whether any best-effort step failed.
func (r *ApplyResult) HasFailures() bool {
	return len(r.PatchFailures) > 0 || len(r.HookFailures) > 0
}

// ModuleReport summarizes what happened to one cloned module.
type ModuleReport struct {
	Name       string   `json:"name"`
	Modules    []string `json:"modules,omitempty"`
	ThirdParty []string `json:"thirdparty,omitempty"`
	Patches    int      `json:"patches"`
	Hooks      int      `json:"hooks"`
}

// Failure describes one best-effort step that failed.
type Failure struct {
	Module string `json:"module"`
	Item   string `json:"item"`
	Error  string `json:"error"`
}

// CleanResult represents the result of a clean operation.
type CleanResult struct {
	// Removed lists the paths deleted
	Removed []string `json:"removed"`

	// Missing lists logged paths that no longer existed
	Missing []string `json:"missing,omitempty"`

	// Rejected lists logged paths outside the target tree that were left alone
	Rejected []string `json:"rejected,omitempty"`

	// RestoreError is set when restoring tracked files failed
	RestoreError string `json:"restore_error,omitempty"`
}

// StatusResult represents the current applied state of the target.
type StatusResult struct {
	// Applied is true when an applied-paths log exists
	Applied bool `json:"applied"`

	// TargetRoot is the target tree
	TargetRoot string `json:"target_root"`

	// LogPath is the applied-paths log location
	LogPath string `json:"log_path"`

	// Entries lists every logged path
	Entries []PathStatus `json:"entries"`
}

// PathStatus is one logged path and whether it is still present.
type PathStatus struct {
	Path   string `json:"path"`
	Root   string `json:"root"`
	Exists bool   `json:"exists"`
}

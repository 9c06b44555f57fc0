package engine

import "errors"

var (
	// ErrManifestNotFound indicates the module manifest file does not exist.
	ErrManifestNotFound = errors.New("modules file not found")

	// ErrTargetNotFound indicates the target directory does not exist.
	ErrTargetNotFound = errors.New("target directory not found")

	// ErrToolMissing indicates the git tool is not available.
	ErrToolMissing = errors.New("required tool missing")

	// ErrWorkspace indicates the workspace could not be prepared.
	ErrWorkspace = errors.New("workspace unavailable")

	// ErrClone indicates a module repository could not be fetched.
	ErrClone = errors.New("clone failed")

	// ErrMerge indicates a module tree could not be merged into the target.
	ErrMerge = errors.New("merge failed")

	// ErrNoPriorApply indicates clean was requested without an applied-paths log.
	ErrNoPriorApply = errors.New("no prior apply")

	// ErrBestEffort indicates a strict apply completed with patch or hook failures.
	ErrBestEffort = errors.New("apply completed with failures")
)

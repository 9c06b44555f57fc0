// Package config resolves modapply settings and the filesystem paths a run
// works with.
//
// Settings come from, in increasing priority: built-in defaults, an optional
// YAML config file (default <target>/.modapply.yaml), MODAPPLY_* environment
// variables, and command-line flags. Every path is anchored on the target
// tree: the workspace, the applied-paths log, and the default manifest all
// live inside it.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/modapply/internal/applylog"
	"github.com/danieljhkim/modapply/internal/manifest"
)

// DefaultWorkspaceName is the workspace directory created inside the target.
const DefaultWorkspaceName = ".modapply-tmp"

// DefaultConfigName is the config file looked up inside the target.
const DefaultConfigName = ".modapply.yaml"

// Paths contains all the filesystem paths used by a run.
type Paths struct {
	// TargetRoot is the absolute path of the target tree
	TargetRoot string `json:"target_root" yaml:"target_root"`

	// Workspace holds the clones of one run
	Workspace string `json:"workspace" yaml:"workspace"`

	// AppliedLog is the applied-paths log file
	AppliedLog string `json:"applied_log" yaml:"applied_log"`

	// Manifest is the module manifest
	Manifest string `json:"manifest" yaml:"manifest"`
}

// ModulesDir is where module trees are merged.
func (p *Paths) ModulesDir() string {
	return filepath.Join(p.TargetRoot, "modules")
}

// ThirdPartyDir is where third-party trees are merged.
func (p *Paths) ThirdPartyDir() string {
	return filepath.Join(p.TargetRoot, "thirdparty")
}

// DefaultConfigFile returns the config file path for a target directory,
// resolving an empty or relative target against cwd.
func DefaultConfigFile(targetDir, cwd string) string {
	return filepath.Join(anchor(targetDir, cwd), DefaultConfigName)
}

// ResolvePaths derives the run paths from settings. An empty target means
// cwd. A relative manifest resolves against cwd; relative workspace and log
// paths resolve against the target.
func ResolvePaths(s *Settings, cwd string) (*Paths, error) {
	target := anchor(s.TargetDir, cwd)

	p := &Paths{
		TargetRoot: target,
		Workspace:  filepath.Join(target, DefaultWorkspaceName),
		AppliedLog: filepath.Join(target, applylog.DefaultFileName),
		Manifest:   filepath.Join(target, manifest.DefaultFileName),
	}
	if s.WorkspaceDir != "" {
		p.Workspace = anchor(s.WorkspaceDir, target)
	}
	if s.LogFile != "" {
		p.AppliedLog = anchor(s.LogFile, target)
	}
	if s.Manifest != "" {
		p.Manifest = anchor(s.Manifest, cwd)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate rejects layouts where removing the workspace would remove the
// target or the log.
func (p *Paths) Validate() error {
	if within(p.TargetRoot, p.Workspace) {
		return fmt.Errorf("workspace %s must not contain the target %s", p.Workspace, p.TargetRoot)
	}
	if within(p.AppliedLog, p.Workspace) {
		return fmt.Errorf("workspace %s must not contain the applied-paths log %s", p.Workspace, p.AppliedLog)
	}
	return nil
}

func anchor(path, base string) string {
	if path == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

// within reports whether path equals dir or lies beneath it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Package fsops provides filesystem operations with safety guarantees.
//
// All filesystem mutations in modapply go through the FS interface: the
// apply workflow merges module trees into the target with MergeCopy, the
// clean workflow removes logged paths with RemoveAll, and the applied-paths
// log is persisted with AtomicWrite.
//
// Key features:
//   - Merge-copy with an explicit overwrite policy and conflict preflight
//   - Atomic writes using temp file + rename
//   - Path validation for relative paths and identifiers
//   - Testable via the FS interface
package fsops

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FS provides an abstraction for filesystem operations.
type FS interface {
	// Exists checks if a path exists.
	Exists(path string) (bool, error)

	// DirExists reports whether path exists and is a directory.
	DirExists(path string) bool

	// FileExists reports whether path exists and is a regular file.
	FileExists(path string) bool

	// Mkdir creates a single directory. Callers confirm the result with DirExists.
	Mkdir(path string) error

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string, perm os.FileMode) error

	// Remove removes a file or empty directory.
	Remove(path string) error

	// RemoveAll removes a path and all its contents. A missing path is not an error.
	RemoveAll(path string) error

	// Copy copies a file or directory from src to dst.
	Copy(src, dst string) error

	// MergeCopy copies every immediate entry of from into to and returns the
	// destination paths it wrote.
	MergeCopy(from, to string, overwrite bool) ([]string, error)

	// ReadDir returns the names of the immediate entries of dir in listing order.
	ReadDir(dir string) ([]string, error)

	// AtomicWrite writes data to path atomically using temp file + rename.
	AtomicWrite(path string, data []byte, perm os.FileMode) error

	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// ValidateRelPath validates a relative path for safety.
	ValidateRelPath(relPath string) error

	// ValidateIdentifier validates an identifier for safety.
	ValidateIdentifier(id string) error
}

// RealFS implements FS using actual OS operations.
type RealFS struct{}

// NewRealFS creates a new RealFS.
func NewRealFS() *RealFS {
	return &RealFS{}
}

// Exists checks if a path exists.
func (fs *RealFS) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// DirExists reports whether path is an existing directory.
func (fs *RealFS) DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FileExists reports whether path is an existing regular file.
func (fs *RealFS) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Mkdir creates a single directory with mode 0755.
func (fs *RealFS) Mkdir(path string) error {
	return os.Mkdir(path, 0755)
}

// MkdirAll creates a directory and all parent directories.
func (fs *RealFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Remove removes a file or empty directory.
func (fs *RealFS) Remove(path string) error {
	return os.Remove(path)
}

// RemoveAll removes a path and all its contents.
func (fs *RealFS) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// ReadDir returns the entry names of dir in the order the OS lists them.
func (fs *RealFS) ReadDir(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	// Readdirnames keeps the directory's native order instead of sorting.
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	return names, nil
}

// MergeCopy copies every immediate entry of from into to under the same name.
// A missing to is created but not reported; callers that must undo the copy
// record it themselves.
//
// When overwrite is false, every destination is checked before anything is
// written and a *ConflictError listing all collisions is returned if any
// destination already exists. When overwrite is true, existing directories
// are merged into and existing files are replaced.
func (fs *RealFS) MergeCopy(from, to string, overwrite bool) ([]string, error) {
	names, err := fs.ReadDir(from)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	if !overwrite {
		var conflicts []string
		for _, name := range names {
			dst := filepath.Join(to, name)
			exists, err := fs.Exists(dst)
			if err != nil {
				return nil, fmt.Errorf("failed to check destination %s: %w", dst, err)
			}
			if exists {
				conflicts = append(conflicts, dst)
			}
		}
		if len(conflicts) > 0 {
			return nil, &ConflictError{Paths: conflicts}
		}
	}

	if err := os.MkdirAll(to, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	written := make([]string, 0, len(names))
	for _, name := range names {
		dst := filepath.Join(to, name)
		if err := fs.Copy(filepath.Join(from, name), dst); err != nil {
			return written, fmt.Errorf("failed to copy %s: %w", name, err)
		}
		written = append(written, dst)
	}

	return written, nil
}

// Copy copies a file or directory from src to dst.
// Follows symlinks to copy the target content, not the symlink itself.
func (fs *RealFS) Copy(src, dst string) error {
	// Use Stat (not Lstat) to follow symlinks and get the actual type
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	dstInfo, err := os.Lstat(dst)
	if err == nil {
		if srcInfo.IsDir() != dstInfo.IsDir() {
			if err := os.RemoveAll(dst); err != nil {
				return fmt.Errorf("failed to remove existing destination: %w", err)
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat destination: %w", err)
	}

	if srcInfo.IsDir() {
		return fs.copyDir(src, dst, srcInfo.Mode())
	}
	return fs.copyFile(src, dst, srcInfo.Mode())
}

// copyFile copies a single file from src to dst.
func (fs *RealFS) copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() {
		_ = srcFile.Close()
	}()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	defer func() {
		_ = dstFile.Close()
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}

	return dstFile.Sync()
}

// copyDir recursively copies a directory from src to dst, merging into dst
// when it already exists.
func (fs *RealFS) copyDir(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(dst, mode.Perm()|0700); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %w", err)
	}

	for _, entry := range entries {
		if err := fs.Copy(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

// AtomicWrite writes data to path atomically using temp file + rename.
func (fs *RealFS) AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	// Create temp file in the same directory as target
	tmpFile, err := os.CreateTemp(dir, ".modapply-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	tmpFile = nil
	return nil
}

// ReadFile reads the entire contents of a file.
func (fs *RealFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// ValidateRelPath validates a relative path for safety.
// Returns an error if the path is invalid or unsafe.
func (fs *RealFS) ValidateRelPath(relPath string) error {
	return validateRelPath(relPath)
}

// ValidateIdentifier validates an identifier (e.g., a clone directory name) for safety.
// Returns an error if the identifier contains invalid characters or path traversal attempts.
func (fs *RealFS) ValidateIdentifier(id string) error {
	return validateIdentifier(id)
}

func validateRelPath(relPath string) error {
	cleaned := filepath.Clean(relPath)

	if cleaned == "" || cleaned == "." {
		return errors.New("invalid path: empty or current directory")
	}

	if filepath.IsAbs(cleaned) {
		return fmt.Errorf("invalid path: must be relative, got absolute path %q", cleaned)
	}

	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("invalid path: path traversal not allowed in %q", cleaned)
	}

	return nil
}

func validateIdentifier(id string) error {
	if id == "" {
		return errors.New("invalid identifier: empty")
	}

	if strings.ContainsAny(id, `/\`) || strings.Contains(id, string(filepath.Separator)) {
		return errors.New("invalid identifier: must not contain path separators")
	}

	if id == "." || id == ".." {
		return errors.New("invalid identifier: path traversal not allowed")
	}

	return nil
}

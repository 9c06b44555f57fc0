// Package applylog persists the applied-paths log: the ordered list of
// absolute target paths that the last successful apply created or
// overwrote. The log is a plain text file with one path per line and no
// header, and it is the only input the clean workflow needs.
package applylog

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/danieljhkim/modapply/internal/fsops"
)

// DefaultFileName is the log file name inside the target tree.
const DefaultFileName = ".applied_modules"

// Log is the record of one completed apply run.
type Log struct {
	// Paths are absolute target paths in the order they were written.
	Paths []string `json:"paths" yaml:"paths"`
}

// Add appends paths to the log.
func (l *Log) Add(paths ...string) {
	l.Paths = append(l.Paths, paths...)
}

// Len returns the number of logged paths.
func (l *Log) Len() int {
	return len(l.Paths)
}

// Store loads and saves a Log.
type Store interface {
	// Exists reports whether a log is present.
	Exists() bool

	// Load reads the log. Returns os.ErrNotExist if there is none.
	Load() (*Log, error)

	// Save writes the log atomically, replacing any previous log.
	Save(log *Log) error

	// Delete removes the log. A missing log is not an error.
	Delete() error

	// Path returns the location of the log file.
	Path() string
}

// FileStore implements Store as a line-oriented text file.
type FileStore struct {
	fs   fsops.FS
	path string
}

// NewFileStore creates a FileStore for the log at path.
func NewFileStore(fs fsops.FS, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Exists() bool {
	return s.fs.FileExists(s.path)
}

// Load reads one path per line. Blank lines are ignored.
func (s *FileStore) Load() (*Log, error) {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read applied-paths log: %w", err)
	}

	log := &Log{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		log.Add(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse applied-paths log: %w", err)
	}

	return log, nil
}

func (s *FileStore) Save(log *Log) error {
	var buf bytes.Buffer
	for _, p := range log.Paths {
		if strings.ContainsAny(p, "\r\n") {
			return fmt.Errorf("cannot log path containing a newline: %q", p)
		}
		buf.WriteString(p)
		buf.WriteByte('\n')
	}

	if err := s.fs.AtomicWrite(s.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write applied-paths log: %w", err)
	}

	return nil
}

func (s *FileStore) Delete() error {
	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete applied-paths log: %w", err)
	}

	return nil
}

// Package manifest reads the list of module repositories to apply.
//
// A manifest is a UTF-8 text file with one module per line:
//
//	<repository-url>[ <branch>]
//
// Empty lines and lines starting with '#' are ignored. Repository URLs are
// not validated here; a malformed entry surfaces later as a clone failure.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"unicode"
)

// DefaultFileName is the manifest name looked up at the target root.
const DefaultFileName = "modules_file.txt"

// ErrNotFound indicates the manifest file does not exist.
var ErrNotFound = errors.New("manifest not found")

// Source is a single module repository declared in the manifest.
type Source struct {
	// Repository is the clone URL or path.
	Repository string `json:"repository" yaml:"repository"`

	// Branch pins the clone to a branch; empty means the default branch.
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`
}

// String renders the source in manifest syntax.
func (s Source) String() string {
	if s.Branch == "" {
		return s.Repository
	}
	return s.Repository + " " + s.Branch
}

// ParseLine parses one manifest line. The boolean is false for blank and
// comment lines.
func ParseLine(line string) (Source, bool) {
	line = strings.TrimRightFunc(line, unicode.IsSpace)
	trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Source{}, false
	}

	idx := strings.IndexFunc(trimmed, unicode.IsSpace)
	if idx < 0 {
		return Source{Repository: trimmed}, true
	}

	return Source{
		Repository: trimmed[:idx],
		Branch:     strings.TrimLeftFunc(trimmed[idx:], unicode.IsSpace),
	}, true
}

// Parse returns a lazy sequence over the sources in r. A read error is
// yielded once as the final element.
func Parse(r io.Reader) iter.Seq2[Source, error] {
	return func(yield func(Source, error) bool) {
		scanner := bufio.NewScanner(r)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			src, ok := ParseLine(scanner.Text())
			if !ok {
				continue
			}
			if !yield(src, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Source{}, fmt.Errorf("failed to read manifest after line %d: %w", lineNo, err))
		}
	}
}

// Open checks that the manifest at path exists and returns a lazy sequence
// over its sources. The file is opened when iteration starts and closed when
// it stops.
func Open(path string) (iter.Seq2[Source, error], error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat manifest: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	return func(yield func(Source, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(Source{}, fmt.Errorf("failed to open manifest: %w", err))
			return
		}
		defer func() {
			_ = f.Close()
		}()

		for src, err := range Parse(f) {
			if !yield(src, err) {
				return
			}
		}
	}, nil
}

// ReadAll collects every source from the manifest at path.
func ReadAll(path string) ([]Source, error) {
	seq, err := Open(path)
	if err != nil {
		return nil, err
	}

	var sources []Source
	for src, err := range seq {
		if err != nil {
			return sources, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

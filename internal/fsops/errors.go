package fsops

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConflict indicates a merge-copy destination already exists and
// overwriting was not allowed.
var ErrConflict = errors.New("destination already exists")

// ConflictError lists every destination that blocked a merge-copy.
type ConflictError struct {
	Paths []string
}

func (e *ConflictError) Error() string {
	if len(e.Paths) == 1 {
		return fmt.Sprintf("%v: %s", ErrConflict, e.Paths[0])
	}
	return fmt.Sprintf("%v: %d entries (%s)", ErrConflict, len(e.Paths), strings.Join(e.Paths, ", "))
}

// Is makes errors.Is(err, ErrConflict) match a *ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

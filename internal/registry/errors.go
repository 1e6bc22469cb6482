package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTargetNotRegistered marks a `_target_` with no registered target.
	ErrTargetNotRegistered = errors.New("target not registered")
	// ErrInvalidTargetArgs marks a subtree whose keys do not fit its target.
	ErrInvalidTargetArgs = errors.New("invalid target arguments")
)

// Problem is a single validation failure.
type Problem struct {
	Path   string
	Target string
	Err    error
}

func (p Problem) String() string {
	where := p.Path
	if where == "" {
		where = "<root>"
	}
	if p.Target == "" {
		return fmt.Sprintf("%s: %v", where, p.Err)
	}
	return fmt.Sprintf("%s (%s): %v", where, p.Target, p.Err)
}

// ValidationError collects every problem found in one tree.
type ValidationError struct {
	Problems []Problem
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		lines[i] = p.String()
	}
	return fmt.Sprintf("target validation failed:\n- %s", strings.Join(lines, "\n- "))
}

// Unwrap exposes every problem's cause to errors.Is.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, len(e.Problems))
	for i, p := range e.Problems {
		out[i] = p.Err
	}
	return out
}

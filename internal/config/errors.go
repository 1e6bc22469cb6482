package config

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every resolution failure wraps exactly one of these so callers
// can classify it with errors.Is.
var (
	ErrConfigNotFound          = errors.New("config not found")
	ErrConfigConflict          = errors.New("config conflict")
	ErrInvalidOverridePath     = errors.New("invalid override path")
	ErrInvalidLiteral          = errors.New("invalid literal")
	ErrInterpolationUnresolved = errors.New("interpolation unresolved")
	ErrInterpolationCycle      = errors.New("interpolation cycle")
)

// Error is a resolution failure located at a key path, optionally attributed
// to the document that produced it.
type Error struct {
	Kind   error
	Path   string
	Source string
	Detail string
	Err    error
}

// Errorf builds an *Error of the given kind with a formatted detail message.
func Errorf(kind error, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Detail: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Path != "" {
		fmt.Fprintf(&sb, " at '%s'", e.Path)
	}
	if e.Source != "" {
		fmt.Fprintf(&sb, " (in %s)", e.Source)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WithSource returns a copy of the error attributed to a document.
func (e *Error) WithSource(source string) *Error {
	c := *e
	c.Source = source
	return &c
}

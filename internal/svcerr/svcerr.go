// Package svcerr classifies the error taxonomy of spec §7 so that call
// sites can log a component- and path-qualified entry and turn the
// failure into either a retry schedule or a Maintenance landing state.
// No error defined here is meant to propagate out of the event loop;
// it is recorded and converted to state-machine or graph action instead.
package svcerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds from spec §7's error taxonomy table.
var (
	ErrTransientMethod    = errors.New("transient method failure")
	ErrMethodTimeout      = errors.New("method timeout")
	ErrForkFailed         = errors.New("fork failed")
	ErrCyclicalDependency = errors.New("cyclical dependency")
	ErrUnknownPath        = errors.New("unknown path in graph note")
	ErrRepositoryDown     = errors.New("repository disconnect")
	ErrInvariantViolation = errors.New("invariant violation")
)

// PathError wraps one of the sentinel kinds above with the path and
// component it occurred in, matching the "path-qualified log entry"
// requirement of §7.
type PathError struct {
	Component string
	Path      string
	Kind      error
	Detail    string
}

func (e *PathError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s[%s]: %v", e.Component, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s[%s]: %v: %s", e.Component, e.Path, e.Kind, e.Detail)
}

func (e *PathError) Unwrap() error { return e.Kind }

// New builds a PathError.
func New(component, path string, kind error, detail string) *PathError {
	return &PathError{Component: component, Path: path, Kind: kind, Detail: detail}
}

// Is reports whether err is (or wraps) one of the sentinel kinds, letting
// callers branch on classification with errors.Is(err, svcerr.ErrForkFailed).
func Is(err error, kind error) bool { return errors.Is(err, kind) }

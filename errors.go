package uvp

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed input; nothing was mutated.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the referenced feed or video does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or dependency violation.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition indicates a lifecycle rule violation; the video's
	// state was left untouched.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrPlayerLaunch indicates the external player process could not start.
	ErrPlayerLaunch = errors.New("failed to launch player")

	ErrDuplicateAdapter  = errors.New("duplicate adapter for feed kind")
	ErrDuplicateResolver = errors.New("duplicate resolver name")
	ErrInvalidResolver   = errors.New("invalid resolver")
	ErrNoMatch           = errors.New("no resolver matched the input")
	ErrUnknownAdapter    = errors.New("no adapter for feed kind")
)

type AdapterErrorKind string

const (
	AdapterErrorNetwork  AdapterErrorKind = "network"
	AdapterErrorAuth     AdapterErrorKind = "auth"
	AdapterErrorParse    AdapterErrorKind = "parse"
	AdapterErrorNotFound AdapterErrorKind = "not-found"
)

// An AdapterError is a feed fetch failure, scoped to a single feed. A
// multi-feed refresh collects these into its summary instead of aborting
// sibling feeds.
type AdapterError struct {
	Feed string
	Kind AdapterErrorKind
	Err  error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("feed %q: %s error: %v", e.Feed, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// A PlayerExitError is a nonzero player exit that was not caused by
// cancellation. It is reported but non-fatal: the video stays Active.
type PlayerExitError struct {
	ExitCode int
	Err      error
}

func (e *PlayerExitError) Error() string {
	return fmt.Sprintf("player exited with code %d: %v", e.ExitCode, e.Err)
}

func (e *PlayerExitError) Unwrap() error { return e.Err }

// Package mergeerr declares the engine's error taxonomy (§7): a closed
// set of tagged codes that every component surfaces instead of ad hoc
// errors, so the orchestrator and its callers (CLI, HTTP handler) can
// branch on cause without string-matching messages.
//
// It is a leaf package with no dependency on any other engine component,
// which is what lets both the orchestrator (internal/merge) and the
// mergers it drives (internal/locationmerge, internal/rowmerge) import it
// without an import cycle.
package mergeerr

import "fmt"

// Code is one of the tagged error categories from §7.
type Code string

const (
	// InputInvalid: fewer than two sources, or an unrecognized extension.
	InputInvalid Code = "InputInvalid"
	// BadContainer: missing manifest/database entry, malformed zip stream.
	BadContainer Code = "BadContainer"
	// BadManifest: manifest is not valid JSON or omits required fields.
	BadManifest Code = "BadManifest"
	// BadDatabase: database blob fails to open, or lacks required tables.
	BadDatabase Code = "BadDatabase"
	// InputTooLarge: combined input exceeds the configured size cap.
	InputTooLarge Code = "InputTooLarge"
	// MergeConflict: a verified-failed first-occurrence Location insert,
	// or an exhausted primary-key allocation search (1,000 tries).
	MergeConflict Code = "MergeConflict"
	// Cancelled: the caller's cancel token fired.
	Cancelled Code = "Cancelled"
	// Internal: any other unexpected condition.
	Internal Code = "Internal"
)

// Error wraps an underlying cause with a Code, per §7.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error from a format string.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// Wrap tags an existing error with a code, preserving it as the cause.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// As reports whether err (or something it wraps) is a *Error, mirroring
// the standard library's errors.As convention for this one concrete type.
func As(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

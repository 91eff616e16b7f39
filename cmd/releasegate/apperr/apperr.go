// Package apperr defines the tagged error kinds shared across the
// catalog engine's layers. Every failure of an admission or toggle
// attempt is one of these kinds; none is fatal to the process.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a catalog engine error
type Kind string

const (
	// KindInvalidInput is a field-level validation failure; the error
	// carries a per-field violation map
	KindInvalidInput Kind = "invalid_input"

	// KindConflict is a duplicate version code detected at commit time;
	// the caller must resubmit with a new code
	KindConflict Kind = "conflict"

	// KindNotFound is an operation on a version code not in the catalog
	KindNotFound Kind = "not_found"

	// KindTransferFailure is a network or storage error during artifact
	// upload; recoverable via full retry
	KindTransferFailure Kind = "transfer_failure"

	// KindURLResolution is a post-transfer failure to resolve the
	// artifact's download URL
	KindURLResolution Kind = "url_resolution_failure"

	// KindInternal is an unexpected collaborator failure
	KindInternal Kind = "internal"
)

// FieldErrors maps a draft field name to a human-readable violation.
// An empty map means the draft is valid.
type FieldErrors map[string]string

func (f FieldErrors) String() string {
	if len(f) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

// Error is a tagged catalog engine error
type Error struct {
	Kind   Kind
	Msg    string
	Fields FieldErrors
	Err    error
}

func (e *Error) Error() string {
	switch {
	case len(e.Fields) > 0:
		return fmt.Sprintf("%s: %s", e.Msg, e.Fields)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates an error of the given kind wrapping a cause
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Invalid creates an InvalidInput error carrying field violations
func Invalid(fields FieldErrors) *Error {
	return &Error{Kind: KindInvalidInput, Msg: "release draft rejected", Fields: fields}
}

// KindOf returns the kind of err, or KindInternal for untagged errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is tagged with the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// FieldsOf returns the field violations carried by err, if any
func FieldsOf(err error) FieldErrors {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

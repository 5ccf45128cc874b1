// Package errors provides error handling for albumtracker.
//
// It re-exports github.com/cockroachdb/errors and adds the ingestion error
// taxonomy. Every error that leaves a pipeline stage is marked with exactly
// one kind so the batch orchestrator can decide whether to skip the file or
// abort the run.
//
// Usage:
//
//	if err != nil {
//	    return errors.Mark(errors.Wrap(err, "failed to read image"), errors.ErrIO)
//	}
//
//	if errors.Is(err, errors.ErrAuth) {
//	    // stop the batch
//	}
package errors

import (
	"context"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	Mark        = crdb.Mark
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is           = crdb.Is
	IsAny        = crdb.IsAny
	As           = crdb.As
	FlattenHints = crdb.FlattenHints
	GetAllHints  = crdb.GetAllHints
)

// Kinds of ingestion failure. Use Mark to tag an error and Is or KindOf to
// classify it.
var (
	// ErrIO: the image could not be read, or the filesystem refused a rename.
	ErrIO = New("io error")

	// ErrDecode: the file is not a supported or intact image.
	ErrDecode = New("decode error")

	// ErrAuth: credentials are missing, rejected, or could not be minted.
	ErrAuth = New("auth error")

	// ErrNetwork: the remote service could not be reached or answered with a
	// failure status.
	ErrNetwork = New("network error")

	// ErrParse: the service answered but the payload lacked the expected shape.
	ErrParse = New("parse error")

	// ErrEmptyCandidates: the catalog search returned nothing to choose from.
	ErrEmptyCandidates = New("no catalog candidates")

	// ErrInput: the operator supplied an invalid selection or configuration.
	ErrInput = New("invalid operator input")
)

// ErrMarker marks IO failures while applying the processed marker. A file
// whose remote write succeeded but whose marker could not be applied would be
// committed twice on the next run, so these abort the batch.
var ErrMarker = New("processed marker error")

var kinds = []error{ErrAuth, ErrEmptyCandidates, ErrInput, ErrDecode, ErrParse, ErrNetwork, ErrIO}

// KindOf returns the taxonomy sentinel err was marked with, or nil when err
// carries none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns a short label for the kind of err, suitable for reports.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrIO:
		return "IOError"
	case ErrDecode:
		return "DecodeError"
	case ErrAuth:
		return "AuthError"
	case ErrNetwork:
		return "NetworkError"
	case ErrParse:
		return "ParseError"
	case ErrEmptyCandidates:
		return "EmptyCandidatesError"
	case ErrInput:
		return "InputError"
	default:
		if IsAny(err, context.Canceled, context.DeadlineExceeded) {
			return "Canceled"
		}
		return "Error"
	}
}

// IsSystemic reports whether err would fail every remaining file the same
// way, in which case the batch must stop instead of moving on. A context
// error only counts when no stage classified it; a request that timed out
// and was marked ErrNetwork concerns one file.
func IsSystemic(err error) bool {
	if err == nil {
		return false
	}
	if IsAny(err, ErrAuth, ErrMarker) {
		return true
	}
	return KindOf(err) == nil && IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// Newk creates an error of the given kind.
func Newk(kind error, msg string) error {
	return Mark(crdb.NewWithDepth(1, msg), kind)
}

// Newkf creates a formatted error of the given kind.
func Newkf(kind error, format string, args ...interface{}) error {
	return Mark(crdb.NewWithDepthf(1, format, args...), kind)
}

// Wrapk wraps err with msg and marks it with kind. A nil err yields nil.
func Wrapk(err error, kind error, msg string) error {
	if err == nil {
		return nil
	}
	return Mark(crdb.WrapWithDepth(1, err, msg), kind)
}

// Wrapkf is Wrapk with a format string.
func Wrapkf(err error, kind error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(crdb.WrapWithDepthf(1, err, format, args...), kind)
}

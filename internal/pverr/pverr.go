// Package pverr classifies the error kinds this repository's components
// can surface (spec.md §7): NotFound, DecodeError, ImportError, DriverError,
// and Transient. Transient errors are handled internally with backoff and
// never escape to a caller; the other four are terminal: a loader exposes
// them through its content snapshot, and a player logs them and discards
// its schedule.
package pverr

import "errors"

// Kind classifies an error raised by the core subsystems.
type Kind int

const (
	// KindUnknown is the zero value: an error that hasn't been classified.
	KindUnknown Kind = iota
	// KindNotFound indicates a media file open failure.
	KindNotFound
	// KindDecode indicates a corrupt stream or unsupported codec.
	KindDecode
	// KindImport indicates a GPU memory import failure.
	KindImport
	// KindDriver indicates an atomic commit rejection or lost connector.
	KindDriver
	// KindTransient indicates a retriable condition (OOM, EAGAIN). Callers
	// that see this kind should back off and retry, never freeze state.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindDecode:
		return "decode_error"
	case KindImport:
		return "import_error"
	case KindDriver:
		return "driver_error"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a classification Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given Kind. A nil err still produces a non-nil
// *Error carrying just the classification, which is occasionally useful
// for sentinel comparisons.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// ClassifyOf returns the Kind of err if it is (or wraps) a *Error,
// KindUnknown otherwise.
func ClassifyOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err is classified as transient, i.e. worth
// retrying with backoff rather than freezing the component that saw it.
func IsTransient(err error) bool {
	return ClassifyOf(err) == KindTransient
}

package proc

import (
	"github.com/pkg/errors"
)

// Kind classifies a process primitive failure.
type Kind int

const (
	// KindFork reports that a child process could not be created.
	KindFork Kind = iota + 1
	// KindChannel reports that a signal channel could not be created.
	KindChannel
	// KindWait reports that waiting for a child failed.
	KindWait
	// KindRelease reports that a byte could not be moved through a channel.
	KindRelease
)

func (k Kind) String() string {
	switch k {
	case KindFork:
		return "fork"
	case KindChannel:
		return "pipe"
	case KindWait:
		return "wait"
	case KindRelease:
		return "release"
	default:
		return "unknown"
	}
}

// Error is returned by every primitive in this package.
type Error struct {
	Kind Kind
	Err  error
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets errors.Cause walk through to the operating system error.
func (e *Error) Cause() error { return e.Err }

// IsKind reports whether err, or anything it wraps, is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var perr *Error
	if !errors.As(err, &perr) {
		return false
	}
	return perr.Kind == kind
}

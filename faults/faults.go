// CLAUDE:SUMMARY Error taxonomy shared by the comparison pipelines: coarse causes plus a wrapping error type.
// Package faults classifies comparison failures into a small set of causes.
//
// Pipelines wrap low-level errors in *Error so the orchestrator can decide
// whether a failure is fatal, degradable, or only a warning without string
// matching.
package faults

import (
	"context"
	"errors"
	"fmt"
)

// Cause is the coarse failure category reported to callers.
type Cause string

const (
	IO             Cause = "io"
	Extraction     Cause = "extraction"
	Classification Cause = "classification"
	Comparison     Cause = "comparison"
	Annotation     Cause = "annotation"
	Canceled       Cause = "canceled"
	InvalidInput   Cause = "invalid_input"
	Internal       Cause = "internal"
)

// Error attaches a Cause and the failing operation to an underlying error.
type Error struct {
	Cause Cause
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err wrapped with cause and op. A nil err stays nil.
func Wrap(cause Cause, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Cause: cause, Op: op, Err: err}
}

// Wrapf is Wrap with a formatted message in place of an existing error.
func Wrapf(cause Cause, op, format string, args ...any) error {
	return &Error{Cause: cause, Op: op, Err: fmt.Errorf(format, args...)}
}

// CauseOf returns the outermost Cause found in err's chain.
// Context cancellation maps to Canceled; anything else unclassified is Internal.
func CauseOf(err error) Cause {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Cause
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled
	}
	return Internal
}

// Is reports whether err carries the given cause.
func Is(err error, cause Cause) bool {
	return err != nil && CauseOf(err) == cause
}

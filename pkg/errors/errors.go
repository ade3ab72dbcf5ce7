// Package errors provides the error primitives used across the application.
// It wraps github.com/pkg/errors so callers get stack traces for free while
// keeping the stdlib errors.Is/As/Unwrap semantics.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// New returns an error with the supplied message and an attached stack trace.
// The message is treated as a format string when args are supplied.
func New(format string, args ...interface{}) error {
	if len(args) == 0 {
		return errors.New(format)
	}
	return errors.Errorf(format, args...)
}

// Wrap returns an error annotating err with a stack trace and the supplied
// message. Returns nil if err is nil.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf returns an error annotating err with a stack trace and a formatted
// message. Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// WithStack annotates err with a stack trace at the point WithStack was called.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err, if available.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Cause returns the underlying cause of the error, if possible.
func Cause(err error) error {
	return errors.Cause(err)
}

// Errorf formats according to a format specifier and returns the string as a
// value that satisfies error, with an attached stack trace.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

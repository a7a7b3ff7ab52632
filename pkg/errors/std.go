package errors

import stderrors "errors"

// Is, As and Unwrap forward to the standard library so callers importing this
// package under the name "errors" keep the usual helpers.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Unwrap(err error) error { return stderrors.Unwrap(err) }

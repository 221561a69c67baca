package retry

import (
	"errors"
	"fmt"
)

// ErrCancelled is matched by every error the Coordinator returns after observing
// cancellation of its context.
var ErrCancelled = errors.New("retry cancelled")

// CancelledError carries the number of attempts made before cancellation was observed and
// the context's error.
type CancelledError struct {
	Attempts int
	Cause    error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("retry cancelled after %d attempt(s): %v", e.Attempts, e.Cause)
}

// Unwrap exposes both ErrCancelled and the context error to errors.Is.
func (e *CancelledError) Unwrap() []error {
	return []error{ErrCancelled, e.Cause}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a dispatch error as final: the Coordinator returns it without consulting
// any policy. The wrapper is removed before the error reaches the caller.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

func unwrapPermanent(err error) error {
	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}

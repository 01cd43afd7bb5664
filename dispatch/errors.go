package dispatch

import (
	"errors"
	"fmt"
)

// ErrPoolStopped is returned when work is submitted to a stopped pool
var ErrPoolStopped = errors.New("worker pool stopped")

// ErrAbandoned marks a handler that stopped retrying because the engine shut down
var ErrAbandoned = errors.New("handler abandoned before reaching a terminal outcome")

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Fatal marks err as permanent: the handler is not retried
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// Retryable marks err as transient. Unmarked errors are treated the same way.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsFatal reports whether err, or anything it wraps, was marked Fatal
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// PanicError carries a value recovered from a panicking handler
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

package combinelock

import (
	"errors"
	"fmt"
)

var (
	// ErrPoisoned is returned when a task was not run because the lock is
	// poisoned, i.e. a prior task panicked, and the lock has not been
	// recovered.
	ErrPoisoned = errors.New(`combinelock: lock poisoned`)

	// ErrNotPoisoned is returned by [Lock.Recover] and [Lock.Unpoison], if
	// the lock was healthy at the time the recovery task was reached.
	ErrNotPoisoned = errors.New(`combinelock: lock not poisoned`)

	// ErrGoexit is used to complete nodes that were pending when a task
	// called runtime.Goexit on the combiner's goroutine.
	ErrGoexit = fmt.Errorf(`combinelock: combiner exited via runtime.Goexit: %w`, ErrPoisoned)
)

// PanicError is returned to a waiter whose task panicked, while being run by
// another goroutine (the combiner). It matches [ErrPoisoned] via [errors.Is].
type PanicError struct {
	// Value is the recovered panic value.
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf(`combinelock: task panicked: %v`, e.Value)
}

// Unwrap returns the panic value if it is an error, and [ErrPoisoned].
//
// Example:
//
//	err := &PanicError{Value: io.EOF}
//	errors.Is(err, io.EOF)        // true
//	errors.Is(err, ErrPoisoned)   // true
func (e *PanicError) Unwrap() []error {
	if err, ok := e.Value.(error); ok {
		return []error{ErrPoisoned, err}
	}
	return []error{ErrPoisoned}
}

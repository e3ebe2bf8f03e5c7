package vrand

import (
	"errors"
	"fmt"

	"github.com/joeycumines/go-combinelock"
)

var (
	// ErrAllocationFailed indicates the Mapper failed to map a region.
	// It is fatal to the call that triggered the allocation, not the pool.
	ErrAllocationFailed = errors.New(`vrand: allocation failed`)

	// ErrResolverUnavailable indicates that there is no fast path. It is
	// never returned by fills, which fall back to the getrandom system call.
	ErrResolverUnavailable = errors.New(`vrand: fast path unavailable`)

	// ErrPoolPoisoned indicates that the pool's internal lock was poisoned,
	// e.g. by a panicking Mapper.
	ErrPoolPoisoned = fmt.Errorf(`vrand: pool poisoned: %w`, combinelock.ErrPoisoned)

	// ErrPoolClosed is returned when renting from a closed pool.
	ErrPoolClosed = errors.New(`vrand: pool closed`)

	// ErrStateClosed is returned when using a closed State.
	ErrStateClosed = errors.New(`vrand: state closed`)

	// ErrExhausted is returned by an EntryPoint when the state must be
	// replenished, before generating further output.
	ErrExhausted = errors.New(`vrand: state exhausted`)
)

// SyscallError is returned when a system call, such as getrandom, fails.
type SyscallError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *SyscallError) Error() string {
	return `vrand: ` + e.Op + `: ` + e.Err.Error()
}

// Unwrap returns the underlying error, typically an errno.
func (e *SyscallError) Unwrap() error {
	return e.Err
}

// lockError maps an error from the pool's lock.
func lockError(err error) error {
	if err == nil {
		return nil
	}
	if err == combinelock.ErrPoisoned {
		return ErrPoolPoisoned
	}
	return fmt.Errorf(`%w: %w`, ErrPoolPoisoned, err)
}

package vrand

import (
	"errors"
	"io"
	"runtime"
	"sync/atomic"
	"syscall"
)

// State is a lease of a single opaque state buffer, rented from a [Pool].
// Fills are served from the buffer, without locking, or system calls, while
// it is current and has material remaining.
//
// A State is not safe for concurrent use. It should be reused for many
// fills, e.g. held per goroutine, or within a sync.Pool, and closed when no
// longer needed. A State that becomes unreachable without being closed is
// released on a best-effort basis, by the garbage collector.
type State struct {
	pool     *Pool
	lease    *lease
	cleanup  runtime.Cleanup
	inflight atomic.Bool
	closed   bool
}

// lease is referenced by the cleanup of a State, so must not refer to it.
type lease struct {
	pool *Pool
	buf  *buffer
}

// NewState rents a buffer from pool. In fallback mode, no buffer is rented.
func NewState(pool *Pool) (*State, error) {
	if pool == nil {
		panic(`vrand: nil pool`)
	}
	if pool.closed.Load() {
		return nil, ErrPoolClosed
	}
	s := &State{pool: pool}
	if pool.Fallback() {
		return s, nil
	}
	b, err := pool.rent()
	if err != nil {
		return nil, err
	}
	s.lease = &lease{pool: pool, buf: b}
	s.cleanup = runtime.AddCleanup(s, (*lease).release, s.lease)
	return s, nil
}

// TryFill fills buf with random bytes, returning the number written, which
// may be less than len(buf).
//
// If the rented buffer is stale (a fork occurred), it is discarded, and a
// fresh one rented. If the buffer is exhausted, the EntryPoint replenishes
// it. Fills using [FlagRandom], and all fills in fallback mode, use the
// getrandom system call.
func (s *State) TryFill(buf []byte, flags Flags) (int, error) {
	if !s.inflight.CompareAndSwap(false, true) {
		panic(`vrand: concurrent or reentrant use of State`)
	}
	defer s.inflight.Store(false)

	if s.closed {
		return 0, ErrStateClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if s.lease == nil || flags&FlagRandom != 0 {
		return s.pool.getrandom(buf, flags)
	}

	b := s.lease.buf
	if b == nil || !s.pool.epochs.Current(b.epoch) {
		var err error
		s.lease.buf = nil
		if b == nil {
			b, err = s.pool.rent()
		} else {
			b, err = s.pool.replace(b)
		}
		if err != nil {
			return 0, err
		}
		s.lease.buf = b
	}

	entry := s.pool.entry
	n, err := entry.Generate(buf, flags, b.state)
	if errors.Is(err, ErrExhausted) {
		if err := entry.Replenish(b.state, flags); err != nil {
			return 0, err
		}
		n, err = entry.Generate(buf, flags, b.state)
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Fill fills buf with random bytes, calling TryFill until it is full, and
// retrying on EAGAIN or EINTR.
func (s *State) Fill(buf []byte, flags Flags) error {
	for len(buf) != 0 {
		n, err := s.TryFill(buf, flags)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) {
				continue
			}
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
		buf = buf[n:]
	}
	return nil
}

// Close releases the rented buffer to the pool, or discards it, if it is
// stale. Subsequent fills return [ErrStateClosed]. Close is idempotent.
func (s *State) Close() error {
	if !s.inflight.CompareAndSwap(false, true) {
		panic(`vrand: concurrent or reentrant use of State`)
	}
	defer s.inflight.Store(false)
	if s.closed {
		return nil
	}
	s.closed = true
	if s.lease != nil {
		s.cleanup.Stop()
		s.lease.release()
	}
	return nil
}

func (x *lease) release() {
	if x.buf != nil {
		x.pool.release(x.buf)
		x.buf = nil
	}
}

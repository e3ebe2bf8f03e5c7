package combinelock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

// blockCombiner makes the calling test the owner of a combiner, blocked
// within its own task, until release is called.
func blockCombiner[T any](t *testing.T, l *Lock[T]) (release func(), done <-chan error) {
	t.Helper()
	entered := make(chan struct{})
	unblock := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Do(func(*T) {
			close(entered)
			<-unblock
		})
	}()
	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatal(`combiner never started`)
	}
	return func() { close(unblock) }, errCh
}

// enqueue calls Do in a new goroutine, returning once its node has been
// published, i.e. it is ordered after everything enqueued prior.
func enqueue[T any](t *testing.T, l *Lock[T], fn func(data *T)) <-chan error {
	t.Helper()
	prev := l.tail.Load()
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Do(fn)
	}()
	require.Eventually(t, func() bool {
		return l.tail.Load() != prev
	}, waitTimeout, time.Millisecond)
	return errCh
}

func receive(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		t.Fatal(`timed out waiting for result`)
		return nil
	}
}

func newLock[T any](t *testing.T, data T, opts ...Option) *Lock[T] {
	t.Helper()
	l, err := New(data, opts...)
	require.NoError(t, err)
	return l
}

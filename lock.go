package combinelock

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// Lock is a flat-combining MCS queue lock, guarding a value of type T.
// Instances must be initialized using the New factory.
//
// The value is only accessible within tasks, see [Lock.Do] and [Run].
type Lock[T any] struct { //nolint:govet // betteralign:ignore
	_ [sizeOfCacheLine]byte //nolint:unused

	// tail is the most recently enqueued node, or nil if the queue is empty
	// (and no goroutine is combining).
	tail atomic.Pointer[node[T]]

	_ [sizeOfCacheLine - sizeOfAtomicPointer]byte //nolint:unused

	poison       poisonFlag
	stats        lockStats
	nodes        sync.Pool
	logger       *logiface.Logger[logiface.Event]
	spinLimit    int
	combineLimit int
	data         T
}

// New initializes a new Lock, guarding data.
func New[T any](data T, opts ...Option) (*Lock[T], error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	l := &Lock[T]{
		logger:       cfg.logger,
		spinLimit:    cfg.spinLimit,
		combineLimit: cfg.combineLimit,
		data:         data,
	}
	l.nodes.New = func() any { return newNode[T]() }
	return l, nil
}

// Do runs fn with exclusive access to the guarded value, blocking until it
// has been run, possibly by another goroutine. The data pointer must not be
// retained beyond the call to fn.
//
// If the lock is poisoned, fn is not run, and [ErrPoisoned] is returned. If
// fn panics, the lock is poisoned, and either the panic is propagated (if fn
// was run by the calling goroutine), or a [*PanicError] is returned.
//
// Do must not be called from within a task of the same lock.
func (l *Lock[T]) Do(fn func(data *T)) error {
	if fn == nil {
		panic(`combinelock: nil task`)
	}
	n := l.getNode()
	n.task = fn
	return l.execute(n)
}

// Run is [Lock.Do], for tasks that produce a result. The zero value of R is
// returned if the task did not complete.
func Run[T, R any](l *Lock[T], fn func(data *T) R) (R, error) {
	if fn == nil {
		panic(`combinelock: nil task`)
	}
	var result R
	err := l.Do(func(data *T) {
		result = fn(data)
	})
	return result, err
}

// InspectPoison returns the current poison state, without blocking.
func (l *Lock[T]) InspectPoison() PoisonState {
	return l.poison.Load()
}

// Poison waits for exclusive access, then poisons the lock, returning
// [ErrPoisoned] if it was already poisoned.
func (l *Lock[T]) Poison() error {
	n := l.getNode()
	n.mode = modePoison
	return l.execute(n)
}

// Recover waits for exclusive access, then, if the lock is poisoned, calls
// fn with the guarded value. If fn returns true, the lock is restored to
// [Healthy]. It is the responsibility of fn to re-establish the consistency
// of the value. Returns [ErrNotPoisoned] if the lock was not poisoned.
//
// A panic within fn is handled like any other task, though the lock simply
// remains poisoned.
func (l *Lock[T]) Recover(fn func(data *T) bool) error {
	if fn == nil {
		panic(`combinelock: nil recover func`)
	}
	n := l.getNode()
	n.mode = modeRecover
	n.repair = fn
	return l.execute(n)
}

// Unpoison restores a poisoned lock to [Healthy], without inspecting the
// value, see also [Lock.Recover].
func (l *Lock[T]) Unpoison() error {
	return l.Recover(func(*T) bool { return true })
}

func (l *Lock[T]) getNode() *node[T] {
	n := l.nodes.Get().(*node[T])
	n.reset()
	return n
}

func (l *Lock[T]) putNode(n *node[T]) {
	n.task = nil
	n.repair = nil
	n.err = nil
	n.panicValue = nil
	l.nodes.Put(n)
}

// execute publishes n, then either waits for it to be completed by the
// combiner, or becomes the combiner.
func (l *Lock[T]) execute(n *node[T]) error {
	if prev := l.tail.Swap(n); prev != nil {
		prev.next.Store(n)
		state, parked := n.wait(l.spinLimit)
		if parked {
			l.stats.parks.Add(1)
		}
		if state != stateHead {
			err := n.err
			l.putNode(n)
			return err
		}
	}
	return l.combine(n)
}

// combine runs own, then every node enqueued behind it, until the tail can
// be detached, or the combine limit is reached. The error for own is
// returned, or its panic re-raised, only after the combiner role has been
// relinquished.
func (l *Lock[T]) combine(own *node[T]) error {
	l.stats.sessions.Add(1)

	var (
		cursor   = own
		count    int
		finished bool
	)

	defer func() {
		if !finished {
			l.abandon(own, cursor)
		}
	}()

	for {
		if prefetchEnabled {
			if next := cursor.next.Load(); next != nil {
				next.touch()
			}
		}

		state := l.runNode(cursor)
		count++

		next := cursor.next.Load()
		if next == nil {
			if l.tail.CompareAndSwap(cursor, nil) {
				l.completeNode(own, cursor, state)
				break
			}
			// a successor swapped the tail, but hasn't linked yet
			next = cursor.awaitNext()
		}

		if l.combineLimit > 0 && count >= l.combineLimit {
			l.stats.handoffs.Add(1)
			l.logger.Debug().
				Int(`tasks`, count).
				Log(`combinelock: handing off combiner role`)
			l.completeNode(own, cursor, state)
			next.complete(stateHead)
			break
		}

		l.completeNode(own, cursor, state)
		cursor = next
	}

	finished = true

	err, panicked, value := own.err, own.panicked, own.panicValue
	l.putNode(own)
	if panicked {
		panic(value)
	}
	return err
}

// completeNode completes n, unless it belongs to the combiner.
func (l *Lock[T]) completeNode(own, n *node[T], state nodeState) {
	if n != own {
		n.complete(state)
	}
}

// runNode runs the task of n, if the poison state permits, recording the
// outcome on n.
func (l *Lock[T]) runNode(n *node[T]) (state nodeState) {
	switch n.mode {
	case modeTask:
		if l.poison.poisoned() {
			l.stats.rejected.Add(1)
			n.err = ErrPoisoned
			return statePoisoned
		}

	case modeRecover:
		if !l.poison.poisoned() {
			n.err = ErrNotPoisoned
			return stateDone
		}

	case modePoison:
		if l.poison.poisoned() {
			n.err = ErrPoisoned
			return statePoisoned
		}
		l.poison.set(Poisoned)
		l.logger.Warning().
			Log(`combinelock: lock poisoned explicitly`)
		return stateDone
	}

	n.markRunning()
	l.stats.executed.Add(1)

	completed := false
	defer func() {
		if completed {
			return
		}
		r := recover()
		if r == nil {
			// runtime.Goexit, see Lock.abandon
			return
		}
		n.panicked = true
		n.panicValue = r
		n.err = &PanicError{Value: r}
		l.stats.panicked.Add(1)
		if l.poison.set(Poisoned) {
			l.logger.Err().
				Any(`panic`, r).
				Log(`combinelock: task panicked, lock poisoned`)
		}
		state = statePoisoned
	}()

	if n.mode == modeRecover {
		if n.repair(&l.data) {
			l.poison.set(Healthy)
			l.logger.Info().
				Log(`combinelock: lock recovered`)
		}
	} else {
		n.task(&l.data)
	}

	completed = true
	return stateDone
}

// abandon is called if the combiner unwinds without relinquishing its role,
// i.e. a task called runtime.Goexit. The lock is poisoned, and every node from
// cursor onwards is completed, including any that arrive before the tail is
// detached, so that no waiter is left blocked.
func (l *Lock[T]) abandon(own, cursor *node[T]) {
	changed := l.poison.set(Poisoned)
	for n := cursor; ; {
		next := n.next.Load()
		if next == nil {
			if l.tail.CompareAndSwap(n, nil) {
				l.abandonNode(own, n)
				break
			}
			next = n.awaitNext()
		}
		l.abandonNode(own, n)
		n = next
	}
	if changed {
		l.logger.Err().
			Log(`combinelock: combiner exited, lock poisoned`)
	}
}

func (l *Lock[T]) abandonNode(own, n *node[T]) {
	if n == own {
		return
	}
	l.stats.rejected.Add(1)
	n.err = ErrGoexit
	n.complete(statePoisoned)
}

package combinelock

import (
	"sync/atomic"
)

// Stats is a point-in-time snapshot of the counters of a [Lock].
// Counters are cumulative, and updated independently, so a snapshot taken
// while the lock is in use may be momentarily inconsistent.
type Stats struct {
	// Executed is the number of tasks that were started (including
	// recovery tasks).
	Executed uint64
	// Panicked is the number of tasks that panicked.
	Panicked uint64
	// Rejected is the number of tasks that were not run, because the lock
	// was poisoned.
	Rejected uint64
	// Sessions is the number of times a goroutine became the combiner.
	Sessions uint64
	// Handoffs is the number of times the combine limit was reached, with
	// the combiner role passed to a waiter.
	Handoffs uint64
	// Parks is the number of times a waiter parked, after spinning.
	Parks uint64
}

type lockStats struct {
	executed atomic.Uint64
	panicked atomic.Uint64
	rejected atomic.Uint64
	sessions atomic.Uint64
	handoffs atomic.Uint64
	parks    atomic.Uint64
}

// Stats returns a snapshot of the lock's counters.
func (l *Lock[T]) Stats() Stats {
	return Stats{
		Executed: l.stats.executed.Load(),
		Panicked: l.stats.panicked.Load(),
		Rejected: l.stats.rejected.Load(),
		Sessions: l.stats.sessions.Load(),
		Handoffs: l.stats.handoffs.Load(),
		Parks:    l.stats.parks.Load(),
	}
}

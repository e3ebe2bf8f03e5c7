package combinelock

import (
	"sync/atomic"
)

// PoisonState reports whether a [Lock] is poisoned.
type PoisonState uint32

const (
	// Healthy indicates tasks are being run normally.
	Healthy PoisonState = iota
	// Poisoned indicates a task panicked, and the lock has not been
	// recovered. Tasks are not run while poisoned.
	Poisoned
)

// String returns a human-readable representation of the state.
func (s PoisonState) String() string {
	switch s {
	case Healthy:
		return "Healthy"
	case Poisoned:
		return "Poisoned"
	default:
		return "Unknown"
	}
}

// poisonFlag is the sticky poison flag of a Lock. It is only written by the
// combiner, but may be read by anyone.
type poisonFlag struct {
	v atomic.Uint32
}

func (f *poisonFlag) Load() PoisonState {
	return PoisonState(f.v.Load())
}

func (f *poisonFlag) poisoned() bool {
	return f.Load() == Poisoned
}

// set stores the state, and reports whether it changed.
func (f *poisonFlag) set(state PoisonState) bool {
	return PoisonState(f.v.Swap(uint32(state))) != state
}

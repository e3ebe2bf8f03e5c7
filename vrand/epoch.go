package vrand

import (
	"sync"
	"sync/atomic"
)

// Epoch identifies the process that stamped a value. A value is current if
// its epoch equals the epoch observed now, and stale otherwise, i.e. after a
// fork.
type Epoch int64

// EpochClock observes the current Epoch. It is safe for concurrent use.
type EpochClock struct {
	identity ProcessIdentity
	// sentinel, if non-nil, is a word within a wipe-on-fork mapping, which is
	// non-zero while cached remains valid
	sentinel *atomic.Uint32
	cached   atomic.Int64
}

var defaultEpochClock = sync.OnceValue(func() *EpochClock {
	c := &EpochClock{
		identity: defaultProcessIdentity,
		sentinel: newForkSentinel(),
	}
	c.refresh()
	return c
})

// NewEpochClock returns an EpochClock using identity, which is called on
// every observation. A nil identity returns the process-wide default clock,
// which avoids the system call where the platform supports it.
func NewEpochClock(identity ProcessIdentity) *EpochClock {
	if identity == nil {
		return defaultEpochClock()
	}
	c := &EpochClock{identity: identity}
	c.refresh()
	return c
}

// Now returns the current epoch.
func (c *EpochClock) Now() Epoch {
	if c.sentinel != nil && c.sentinel.Load() != 0 {
		return Epoch(c.cached.Load())
	}
	return c.refresh()
}

// Current reports whether e is the current epoch.
func (c *EpochClock) Current(e Epoch) bool {
	return c.Now() == e
}

func (c *EpochClock) refresh() Epoch {
	e := Epoch(c.identity())
	c.cached.Store(int64(e))
	if c.sentinel != nil {
		c.sentinel.Store(1)
	}
	return e
}

package combinelock

import (
	"runtime"
	"sync/atomic"
)

// nodeState is the completion marker of a node.
//
// State Machine:
//
//	statePending → stateRunning            [combiner starts the task]
//	statePending → stateDone|statePoisoned [task skipped]
//	stateRunning → stateDone|statePoisoned [task finished]
//	statePending → stateHead               [combiner role handed off]
//
// Independently, the owner may set sleepingBit while the state is pending or
// running, prior to parking. The terminal transitions swap the whole word, so
// the notifier learns whether it must wake the owner in the same atomic step
// that releases the node, and never touches the node otherwise.
type nodeState uint32

const (
	statePending nodeState = iota
	stateRunning
	stateDone
	statePoisoned
	stateHead
)

const sleepingBit uint32 = 1 << 31

// linkSpinLimit is the number of polls of a node's next pointer, before the
// combiner starts yielding, while waiting for a successor to link itself.
const linkSpinLimit = 64

// String returns a human-readable representation of the state.
func (s nodeState) String() string {
	switch s {
	case statePending:
		return "Pending"
	case stateRunning:
		return "Running"
	case stateDone:
		return "Done"
	case statePoisoned:
		return "Poisoned"
	case stateHead:
		return "Head"
	default:
		return "Unknown"
	}
}

// terminal returns true if the owner of the node may stop waiting.
func (s nodeState) terminal() bool {
	return s >= stateDone
}

type nodeMode uint8

const (
	// modeTask runs task, only while healthy.
	modeTask nodeMode = iota
	// modeRecover runs repair, only while poisoned.
	modeRecover
	// modePoison poisons the lock, only while healthy.
	modePoison
)

// node is a single entry in the wait queue. It is owned by a single call to
// Lock.execute, and only ever accessed by other goroutines between being
// published (the tail swap) and being completed (the marker swap).
//
// The fields after marker form the node's task and result slot. They are
// written by the owner prior to publishing, and by the combiner prior to
// completing, and read by the owner after it observes a terminal state.
type node[T any] struct {
	// next is written at most once, by the owner of the successor node.
	next   atomic.Pointer[node[T]]
	marker atomic.Uint32
	wake   chan struct{}
	task   func(data *T)
	repair func(data *T) bool
	err    error

	// panicValue is set if the task panicked, and is re-raised if the node
	// belongs to the combiner.
	panicValue any
	panicked   bool
	mode       nodeMode
}

func newNode[T any]() *node[T] {
	return &node[T]{wake: make(chan struct{}, 1)}
}

// reset prepares the node for reuse. The wake channel is always empty at
// this point, as each wake-up is consumed by the parked owner.
func (n *node[T]) reset() {
	n.next.Store(nil)
	n.marker.Store(uint32(statePending))
	n.task = nil
	n.repair = nil
	n.err = nil
	n.panicValue = nil
	n.panicked = false
	n.mode = modeTask
}

func (n *node[T]) state() nodeState {
	return nodeState(n.marker.Load() &^ sleepingBit)
}

// touch loads the marker, warming the node's cache line.
func (n *node[T]) touch() {
	_ = n.marker.Load()
}

// markRunning transitions pending to running, preserving the sleeping bit.
func (n *node[T]) markRunning() {
	for {
		old := n.marker.Load()
		if nodeState(old&^sleepingBit) != statePending {
			return
		}
		if n.marker.CompareAndSwap(old, (old&sleepingBit)|uint32(stateRunning)) {
			return
		}
	}
}

// complete transitions the node to a terminal state, waking the owner if it
// parked. The node must not be accessed by the caller afterwards.
func (n *node[T]) complete(state nodeState) {
	if n.marker.Swap(uint32(state))&sleepingBit != 0 {
		n.wake <- struct{}{}
	}
}

// wait blocks until the node reaches a terminal state, returning it, and
// reporting whether the owner parked.
func (n *node[T]) wait(spinLimit int) (state nodeState, parked bool) {
	for i := 0; i < spinLimit; i++ {
		if state = n.state(); state.terminal() {
			return state, false
		}
	}
	for {
		old := n.marker.Load()
		if state = nodeState(old &^ sleepingBit); state.terminal() {
			return state, false
		}
		if n.marker.CompareAndSwap(old, old|sleepingBit) {
			<-n.wake
			return n.state(), true
		}
	}
}

// awaitNext waits for the successor of n to finish linking itself, which
// must be guaranteed to happen, e.g. because the tail no longer points at n.
func (n *node[T]) awaitNext() *node[T] {
	for i := 0; ; i++ {
		if next := n.next.Load(); next != nil {
			return next
		}
		if i >= linkSpinLimit {
			runtime.Gosched()
		}
	}
}

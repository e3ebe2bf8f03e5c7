package combinelock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeState_String(t *testing.T) {
	for _, tc := range [...]struct {
		state    nodeState
		expected string
		terminal bool
	}{
		{statePending, `Pending`, false},
		{stateRunning, `Running`, false},
		{stateDone, `Done`, true},
		{statePoisoned, `Poisoned`, true},
		{stateHead, `Head`, true},
		{nodeState(42), `Unknown`, true},
	} {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.state.String())
			assert.Equal(t, tc.terminal, tc.state.terminal())
		})
	}
}

func TestNode_wait_spinning(t *testing.T) {
	n := newNode[int]()
	n.complete(stateDone)
	state, parked := n.wait(10)
	assert.Equal(t, stateDone, state)
	assert.False(t, parked)
	assert.Empty(t, n.wake)
}

func TestNode_wait_parked(t *testing.T) {
	n := newNode[int]()
	n.markRunning()
	require.Equal(t, stateRunning, n.state())

	type result struct {
		state  nodeState
		parked bool
	}
	out := make(chan result, 1)
	go func() {
		state, parked := n.wait(0)
		out <- result{state, parked}
	}()

	require.Eventually(t, func() bool {
		return n.marker.Load()&sleepingBit != 0
	}, waitTimeout, time.Millisecond)
	// the sleeping bit survives the running transition
	require.Equal(t, stateRunning, n.state())

	n.complete(statePoisoned)

	select {
	case r := <-out:
		assert.Equal(t, statePoisoned, r.state)
		assert.True(t, r.parked)
	case <-time.After(waitTimeout):
		t.Fatal(`owner was not woken`)
	}
	assert.Empty(t, n.wake)
}

func TestNode_markRunning_preservesSleepingBit(t *testing.T) {
	n := newNode[int]()
	n.marker.Store(sleepingBit | uint32(statePending))
	n.markRunning()
	assert.Equal(t, sleepingBit|uint32(stateRunning), n.marker.Load())

	n.complete(stateDone)
	assert.Len(t, n.wake, 1)
	<-n.wake

	// no effect once terminal
	n.markRunning()
	assert.Equal(t, stateDone, n.state())
}

func TestNode_reset(t *testing.T) {
	n := newNode[int]()
	n.next.Store(newNode[int]())
	n.task = func(*int) {}
	n.repair = func(*int) bool { return true }
	n.err = ErrPoisoned
	n.panicValue = `x`
	n.panicked = true
	n.mode = modePoison
	n.complete(statePoisoned)

	n.reset()

	assert.Nil(t, n.next.Load())
	assert.Equal(t, statePending, n.state())
	assert.Nil(t, n.task)
	assert.Nil(t, n.repair)
	assert.NoError(t, n.err)
	assert.Nil(t, n.panicValue)
	assert.False(t, n.panicked)
	assert.Equal(t, modeTask, n.mode)
}

func TestNode_awaitNext(t *testing.T) {
	n := newNode[int]()
	next := newNode[int]()
	go func() {
		time.Sleep(time.Millisecond * 5)
		n.next.Store(next)
	}()
	assert.Same(t, next, n.awaitNext())
}

package vrand

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// heapMapper is a Mapper backed by the heap, tracking live mappings.
type heapMapper struct {
	mu      sync.Mutex
	live    map[*byte]int
	maps    int
	unmaps  int
	fail    atomic.Bool
	panicOn atomic.Int32 // panic on the nth call to Map, if non-zero
}

var errMapFailed = errors.New(`map failed`)

func newHeapMapper() *heapMapper {
	return &heapMapper{live: make(map[*byte]int)}
}

func (x *heapMapper) Map(size, _, _ int) ([]byte, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.fail.Load() {
		return nil, errMapFailed
	}
	if n := x.panicOn.Load(); n != 0 && int(n) == x.maps+1 {
		panic(`map exploded`)
	}
	x.maps++
	mem := make([]byte, size)
	x.live[&mem[0]] = size
	return mem, nil
}

func (x *heapMapper) Unmap(mem []byte) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.live[&mem[0]]; !ok {
		return errors.New(`unmap of unknown region`)
	}
	delete(x.live, &mem[0])
	x.unmaps++
	return nil
}

func (x *heapMapper) counts() (maps, unmaps, live int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.maps, x.unmaps, len(x.live)
}

// fakeIdentity simulates forks, by changing the process identity.
type fakeIdentity struct {
	pid atomic.Int64
}

func newFakeIdentity() *fakeIdentity {
	x := new(fakeIdentity)
	x.pid.Store(1000)
	return x
}

func (x *fakeIdentity) identity() int { return int(x.pid.Load()) }

func (x *fakeIdentity) fork() { x.pid.Add(1) }

// counterSyscaller fills buffers from a counter, optionally failing a number
// of calls first.
type counterSyscaller struct {
	mu      sync.Mutex
	next    byte
	calls   int
	flags   []Flags
	errs    []error
	partial int
}

func (x *counterSyscaller) Getrandom(buf []byte, flags Flags) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.calls++
	x.flags = append(x.flags, flags)
	if len(x.errs) != 0 {
		err := x.errs[0]
		x.errs = x.errs[1:]
		return 0, err
	}
	if x.partial > 0 && len(buf) > x.partial {
		buf = buf[:x.partial]
	}
	for i := range buf {
		x.next++
		buf[i] = x.next
	}
	return len(buf), nil
}

func (x *counterSyscaller) callCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.calls
}

// testPool creates a pool using fakes, closing it on cleanup.
func testPool(t *testing.T, mapper *heapMapper, ident *fakeIdentity, opts ...PoolOption) *Pool {
	t.Helper()
	p, err := NewPool(append([]PoolOption{
		WithMapper(mapper),
		WithProcessIdentity(ident.identity),
		WithRegionStates(1),
	}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func testState(t *testing.T, p *Pool) *State {
	t.Helper()
	s, err := NewState(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// statesPerRegion is the number of software states in a region sized for a
// single state.
func statesPerRegion() int {
	return pageSize() / softwareStateSize
}

// distinctBytes counts the distinct byte values in b.
func distinctBytes(b []byte) int {
	var seen [256]bool
	var n int
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			n++
		}
	}
	return n
}

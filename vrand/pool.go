package vrand

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/joeycumines/go-combinelock"
	"github.com/joeycumines/logiface"
)

// Pool is a free list of opaque state buffers, carved from mapped regions,
// shared by all [State] instances created from it. It is safe for concurrent
// use. Instances must be initialized using the NewPool factory.
type Pool struct {
	lock       *combinelock.Lock[freeList]
	entry      EntryPoint
	mapper     Mapper
	syscaller  Syscaller
	epochs     *EpochClock
	logger     *logiface.Logger[logiface.Event]
	params     Params
	stride     int
	regionSize int
	closed     atomic.Bool
	stats      poolStats
}

// freeList is the state guarded by the pool's lock.
type freeList struct {
	buffers []*buffer
	regions map[*region]struct{}
	closed  bool
}

type region struct {
	mem []byte
	// live is the number of buffers carved from mem that have not been
	// discarded, whether free or rented
	live int
}

type buffer struct {
	state  []byte
	region *region
	epoch  Epoch
}

// PoolStats is a snapshot of the counters of a [Pool].
type PoolStats struct {
	RegionsMapped   uint64
	RegionsUnmapped uint64
	// FreeStates is the number of buffers on the free list, which may
	// include stale buffers that have not yet been discarded.
	FreeStates    uint64
	RentedStates  uint64
	StaleDiscards uint64
	// Fallbacks is the number of fills that used the getrandom system call.
	Fallbacks uint64
	// Lock holds the counters of the pool's internal lock.
	Lock combinelock.Stats
}

type poolStats struct {
	regionsMapped   atomic.Uint64
	regionsUnmapped atomic.Uint64
	free            atomic.Int64
	rented          atomic.Int64
	staleDiscards   atomic.Uint64
	fallbacks       atomic.Uint64
}

// NewPool resolves the fast path, and maps the initial region of states. If
// the fast path is unavailable, the pool operates in fallback mode, and no
// memory is mapped.
func NewPool(opts ...PoolOption) (*Pool, error) {
	cfg, err := resolvePoolOptions(opts)
	if err != nil {
		return nil, err
	}

	lock, err := combinelock.New(
		freeList{regions: make(map[*region]struct{})},
		append([]combinelock.Option{combinelock.WithLogger(cfg.logger)}, cfg.lockOptions...)...,
	)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		lock:      lock,
		mapper:    cfg.mapper,
		syscaller: cfg.syscaller,
		epochs:    NewEpochClock(cfg.identity),
		logger:    cfg.logger,
	}

	entry, params, ok := cfg.resolver.Resolve()
	if !ok || entry == nil {
		p.logger.Notice().
			Err(ErrResolverUnavailable).
			Log(`vrand: using getrandom`)
		return p, nil
	}
	if params.StateAlign == 0 {
		params.StateAlign = 1
	}
	page := pageSize()
	if err := params.validate(page); err != nil {
		return nil, err
	}
	p.entry = entry
	p.params = params
	p.stride = alignUp(params.StateSize, params.StateAlign)
	p.regionSize = alignUp(cfg.regionStates*p.stride, page)

	now := p.epochs.Now()
	var growErr error
	if err := p.lock.Do(func(fl *freeList) {
		growErr = p.grow(fl, now)
	}); err != nil {
		return nil, lockError(err)
	}
	if growErr != nil {
		return nil, growErr
	}

	return p, nil
}

// Fallback reports whether the pool is in fallback mode, i.e. every fill
// uses the getrandom system call.
func (p *Pool) Fallback() bool {
	return p.entry == nil
}

// Close discards every free state, unmapping regions that have no rented
// states. Regions with rented states are unmapped once those states are
// closed. Subsequent attempts to create a State return [ErrPoolClosed].
// Close is idempotent, and tears down the pool even if it is poisoned.
func (p *Pool) Close() error {
	var errs []error
	if err := p.exclusive(func(fl *freeList) {
		if fl.closed {
			return
		}
		fl.closed = true
		p.closed.Store(true)
		for i, b := range fl.buffers {
			fl.buffers[i] = nil
			if err := p.discard(fl, b); err != nil {
				errs = append(errs, err)
			}
		}
		fl.buffers = nil
		p.stats.free.Store(0)
	}); err != nil {
		return lockError(err)
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		RegionsMapped:   p.stats.regionsMapped.Load(),
		RegionsUnmapped: p.stats.regionsUnmapped.Load(),
		FreeStates:      uint64(max(p.stats.free.Load(), 0)),
		RentedStates:    uint64(max(p.stats.rented.Load(), 0)),
		StaleDiscards:   p.stats.staleDiscards.Load(),
		Fallbacks:       p.stats.fallbacks.Load(),
		Lock:            p.lock.Stats(),
	}
}

// rent takes a current buffer from the free list, mapping a new region if
// there are none.
func (p *Pool) rent() (*buffer, error) {
	now := p.epochs.Now()
	var (
		b       *buffer
		takeErr error
	)
	if err := p.lock.Do(func(fl *freeList) {
		b, takeErr = p.take(fl, now)
	}); err != nil {
		return nil, lockError(err)
	}
	return b, takeErr
}

// release returns b to the free list, or discards it, if it is stale, or the
// pool is closed. Buffers are accounted for even if the pool is poisoned.
func (p *Pool) release(b *buffer) {
	now := p.epochs.Now()
	var discardErr error
	if err := p.exclusive(func(fl *freeList) {
		p.stats.rented.Add(-1)
		if b.epoch != now {
			discardErr = p.discardStale(fl, b, now)
			return
		}
		if fl.closed {
			discardErr = p.discard(fl, b)
			return
		}
		fl.buffers = append(fl.buffers, b)
		p.stats.free.Add(1)
	}); err != nil {
		discardErr = lockError(err)
	}
	if discardErr != nil {
		p.logger.Err().
			Err(discardErr).
			Log(`vrand: failed to release state`)
	}
}

// replace discards the stale buffer b, and rents another, as a single task.
// If the pool is poisoned, b is still discarded.
func (p *Pool) replace(b *buffer) (*buffer, error) {
	now := p.epochs.Now()
	var (
		next    *buffer
		takeErr error
	)
	drop := func(fl *freeList) {
		p.stats.rented.Add(-1)
		if err := p.discardStale(fl, b, now); err != nil {
			p.logger.Err().
				Err(err).
				Log(`vrand: failed to discard state`)
		}
	}
	err := p.lock.Do(func(fl *freeList) {
		drop(fl)
		next, takeErr = p.take(fl, now)
	})
	if rejected(err) {
		if err := p.exclusive(drop); err != nil {
			return nil, lockError(err)
		}
	}
	if err != nil {
		return nil, lockError(err)
	}
	return next, takeErr
}

// exclusive runs fn within a task of the pool's lock, including while the
// lock is poisoned, in which case it remains poisoned.
func (p *Pool) exclusive(fn func(fl *freeList)) error {
	for {
		err := p.lock.Do(fn)
		if !rejected(err) {
			return err
		}
		err = p.lock.Recover(func(fl *freeList) bool {
			fn(fl)
			return false
		})
		if err != combinelock.ErrNotPoisoned {
			return err
		}
	}
}

// rejected reports whether err indicates a task was not run, because the lock
// was poisoned.
func rejected(err error) bool {
	return err == combinelock.ErrPoisoned || err == combinelock.ErrGoexit
}

// getrandom serves a fill directly from the system call.
func (p *Pool) getrandom(buf []byte, flags Flags) (int, error) {
	p.stats.fallbacks.Add(1)
	n, err := p.syscaller.Getrandom(buf, flags)
	if err != nil {
		return 0, &SyscallError{Op: `getrandom`, Err: err}
	}
	return n, nil
}

// take must be called within a task of the pool's lock.
func (p *Pool) take(fl *freeList, now Epoch) (*buffer, error) {
	if fl.closed {
		return nil, ErrPoolClosed
	}
	var stale int
	defer func() {
		if stale != 0 {
			p.stats.staleDiscards.Add(uint64(stale))
			p.logger.Info().
				Int(`states`, stale).
				Int64(`current`, int64(now)).
				Log(`vrand: discarded stale free states`)
		}
	}()
	for {
		for len(fl.buffers) != 0 {
			i := len(fl.buffers) - 1
			b := fl.buffers[i]
			fl.buffers[i] = nil
			fl.buffers = fl.buffers[:i]
			p.stats.free.Add(-1)
			if b.epoch != now {
				stale++
				if err := p.discard(fl, b); err != nil {
					p.logger.Err().
						Err(err).
						Log(`vrand: failed to discard state`)
				}
				continue
			}
			p.stats.rented.Add(1)
			return b, nil
		}
		if err := p.grow(fl, now); err != nil {
			return nil, err
		}
	}
}

// grow maps a new region, pushing every buffer carved from it onto the free
// list. It must be called within a task of the pool's lock.
func (p *Pool) grow(fl *freeList, now Epoch) error {
	mem, err := p.mapper.Map(p.regionSize, p.params.MmapProt, p.params.MmapFlags)
	if err != nil {
		return fmt.Errorf(`%w: %w`, ErrAllocationFailed, err)
	}
	if len(mem) < p.regionSize {
		_ = p.mapper.Unmap(mem)
		return fmt.Errorf(`%w: mapped %d of %d bytes`, ErrAllocationFailed, len(mem), p.regionSize)
	}

	r := &region{mem: mem}
	size := p.params.StateSize
	for off := 0; off+size <= p.regionSize; off += p.stride {
		fl.buffers = append(fl.buffers, &buffer{
			state:  mem[off : off+size : off+size],
			region: r,
			epoch:  now,
		})
		r.live++
	}
	fl.regions[r] = struct{}{}

	p.stats.regionsMapped.Add(1)
	p.stats.free.Add(int64(r.live))
	p.logger.Debug().
		Int(`states`, r.live).
		Int(`bytes`, p.regionSize).
		Log(`vrand: mapped region`)

	return nil
}

// discardStale is discard, for a buffer from a prior epoch.
func (p *Pool) discardStale(fl *freeList, b *buffer, now Epoch) error {
	p.stats.staleDiscards.Add(1)
	p.logger.Info().
		Int64(`epoch`, int64(b.epoch)).
		Int64(`current`, int64(now)).
		Log(`vrand: discarding stale state`)
	return p.discard(fl, b)
}

// discard drops b, unmapping its region if it was the last live buffer. It
// must be called within a task of the pool's lock.
func (p *Pool) discard(fl *freeList, b *buffer) error {
	clear(b.state)
	r := b.region
	r.live--
	if r.live > 0 {
		return nil
	}
	delete(fl.regions, r)
	p.stats.regionsUnmapped.Add(1)
	p.logger.Debug().
		Int(`bytes`, len(r.mem)).
		Log(`vrand: unmapping region`)
	return p.mapper.Unmap(r.mem)
}

func (x Params) validate(page int) error {
	if x.StateSize <= 0 {
		return fmt.Errorf(`vrand: invalid state size: %d`, x.StateSize)
	}
	if x.StateAlign < 0 || x.StateAlign&(x.StateAlign-1) != 0 || x.StateAlign > page {
		return fmt.Errorf(`vrand: invalid state alignment: %d`, x.StateAlign)
	}
	return nil
}

func alignUp(n, align int) int {
	if rem := n % align; rem != 0 {
		return n + align - rem
	}
	return n
}

package vrand

import (
	"fmt"
	"runtime"

	"github.com/joeycumines/go-combinelock"
	"github.com/joeycumines/logiface"
)

// poolOptions holds configuration options for Pool creation.
type poolOptions struct {
	resolver     Resolver
	mapper       Mapper
	syscaller    Syscaller
	identity     ProcessIdentity
	logger       *logiface.Logger[logiface.Event]
	lockOptions  []combinelock.Option
	regionStates int
}

// PoolOption configures a Pool instance.
type PoolOption interface {
	applyPool(*poolOptions) error
}

// poolOptionImpl implements PoolOption.
type poolOptionImpl struct {
	applyPoolFunc func(*poolOptions) error
}

func (o *poolOptionImpl) applyPool(opts *poolOptions) error {
	return o.applyPoolFunc(opts)
}

// WithResolver configures how the fast path is located. Defaults to a
// SoftwareResolver, using the pool's Syscaller. Use NoResolver to force
// fallback mode.
func WithResolver(resolver Resolver) PoolOption {
	return &poolOptionImpl{func(opts *poolOptions) error {
		opts.resolver = resolver
		return nil
	}}
}

// WithMapper configures the memory-mapping primitive, used to allocate
// regions of states.
func WithMapper(mapper Mapper) PoolOption {
	return &poolOptionImpl{func(opts *poolOptions) error {
		opts.mapper = mapper
		return nil
	}}
}

// WithSyscaller configures the getrandom system call, used by fallback mode.
func WithSyscaller(syscaller Syscaller) PoolOption {
	return &poolOptionImpl{func(opts *poolOptions) error {
		opts.syscaller = syscaller
		return nil
	}}
}

// WithProcessIdentity configures how the current Epoch is observed. The
// default is the process ID, cached where the platform supports detecting a
// fork without a system call.
func WithProcessIdentity(identity ProcessIdentity) PoolOption {
	return &poolOptionImpl{func(opts *poolOptions) error {
		opts.identity = identity
		return nil
	}}
}

// WithRegionStates sets the minimum number of states carved from each mapped
// region, which is rounded up to a whole number of pages. Defaults to the
// number of CPUs.
func WithRegionStates(n int) PoolOption {
	return &poolOptionImpl{func(opts *poolOptions) error {
		if n <= 0 {
			return fmt.Errorf(`vrand: invalid region states: %d`, n)
		}
		opts.regionStates = n
		return nil
	}}
}

// WithLogger configures structured logging, for the pool and its lock.
func WithLogger(logger *logiface.Logger[logiface.Event]) PoolOption {
	return &poolOptionImpl{func(opts *poolOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithLockOptions configures the pool's internal lock. They are applied
// after the pool's own logger.
func WithLockOptions(options ...combinelock.Option) PoolOption {
	return &poolOptionImpl{func(opts *poolOptions) error {
		opts.lockOptions = append(opts.lockOptions, options...)
		return nil
	}}
}

// resolvePoolOptions applies PoolOption instances to poolOptions.
func resolvePoolOptions(opts []PoolOption) (*poolOptions, error) {
	cfg := &poolOptions{
		mapper:       defaultMapper{},
		syscaller:    defaultSyscaller{},
		regionStates: runtime.NumCPU(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyPool(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.mapper == nil {
		cfg.mapper = defaultMapper{}
	}
	if cfg.syscaller == nil {
		cfg.syscaller = defaultSyscaller{}
	}
	if cfg.resolver == nil {
		cfg.resolver = &SoftwareResolver{Syscaller: cfg.syscaller}
	}
	return cfg, nil
}

// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package combinelock

import (
	"fmt"

	"github.com/joeycumines/logiface"
)

const (
	// defaultSpinLimit is the number of times a waiter polls its node before
	// parking.
	defaultSpinLimit = 100
)

// lockOptions holds configuration options for Lock creation.
type lockOptions struct {
	logger       *logiface.Logger[logiface.Event]
	spinLimit    int
	combineLimit int
}

// --- Lock Options ---

// Option configures a Lock instance.
type Option interface {
	applyLock(*lockOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyLockFunc func(*lockOptions) error
}

func (o *optionImpl) applyLock(opts *lockOptions) error {
	return o.applyLockFunc(opts)
}

// WithSpinLimit sets the number of times a waiter polls its node, before
// parking. A value of 0 parks immediately. Defaults to 100.
func WithSpinLimit(n int) Option {
	return &optionImpl{func(opts *lockOptions) error {
		if n < 0 {
			return fmt.Errorf(`combinelock: invalid spin limit: %d`, n)
		}
		opts.spinLimit = n
		return nil
	}}
}

// WithCombineLimit sets the maximum number of tasks a single combiner will
// run, before handing the combiner role to the next waiter. A value of 0
// (the default) disables hand-off, meaning the combiner runs until the queue
// is empty.
//
// Bounding the number of tasks bounds the latency of the combiner's own call,
// at the cost of additional wake-ups.
func WithCombineLimit(n int) Option {
	return &optionImpl{func(opts *lockOptions) error {
		if n < 0 {
			return fmt.Errorf(`combinelock: invalid combine limit: %d`, n)
		}
		opts.combineLimit = n
		return nil
	}}
}

// WithLogger configures structured logging, for poisoning, recovery, and
// hand-off events. A nil logger disables logging (the default).
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *lockOptions) error {
		opts.logger = logger
		return nil
	}}
}

// resolveOptions applies Option instances to lockOptions.
func resolveOptions(opts []Option) (*lockOptions, error) {
	cfg := &lockOptions{
		spinLimit: defaultSpinLimit,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLock(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

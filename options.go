// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worklet

import (
	"github.com/joeycumines/logiface"
)

// contextOptions holds configuration options for Context creation.
type contextOptions struct {
	logger         *logiface.Logger[logiface.Event]
	runtimeFactory RuntimeFactory
	queueOptions   []QueueOption
	drain          bool
	loggerSet      bool
}

// queueOptions holds configuration options for DispatchQueue creation.
type queueOptions struct {
	logger *logiface.Logger[logiface.Event]
	name   string
	drain  bool
}

// --- Context Options ---

// Option configures a [Context] instance.
type Option interface {
	applyContext(*contextOptions) error
}

type contextOptionImpl struct {
	applyContextFunc func(*contextOptions) error
}

func (x *contextOptionImpl) applyContext(opts *contextOptions) error {
	return x.applyContextFunc(opts)
}

// WithLogger sets the structured logger used by the context, its dispatch
// queue, and the worklet runtime's console. A nil logger disables logging.
//
// Derived contexts inherit the parent's logger unless this option is given.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &contextOptionImpl{func(opts *contextOptions) error {
		opts.logger = logger
		opts.loggerSet = true
		return nil
	}}
}

// WithRuntimeFactory replaces the factory used to create the worklet runtime
// of a root context. It has no effect on derived contexts, which share their
// parent's runtime.
func WithRuntimeFactory(factory RuntimeFactory) Option {
	return &contextOptionImpl{func(opts *contextOptions) error {
		opts.runtimeFactory = factory
		return nil
	}}
}

// WithDrainOnShutdown sets whether the owned dispatch queue runs every
// closure already queued when it is stopped. When disabled (default),
// pending closures are discarded.
func WithDrainOnShutdown(enabled bool) Option {
	return &contextOptionImpl{func(opts *contextOptions) error {
		opts.drain = enabled
		return nil
	}}
}

// WithQueueOptions passes options through to the owned [DispatchQueue].
// They are applied after the options derived from the context configuration.
func WithQueueOptions(options ...QueueOption) Option {
	return &contextOptionImpl{func(opts *contextOptions) error {
		opts.queueOptions = append(opts.queueOptions, options...)
		return nil
	}}
}

// resolveContextOptions applies Option instances to contextOptions.
func resolveContextOptions(opts []Option) (*contextOptions, error) {
	cfg := &contextOptions{
		runtimeFactory: NewWorkletRuntime,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyContext(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.runtimeFactory == nil {
		cfg.runtimeFactory = NewWorkletRuntime
	}
	return cfg, nil
}

// --- Queue Options ---

// QueueOption configures a [DispatchQueue] instance.
type QueueOption interface {
	applyQueue(*queueOptions) error
}

type queueOptionImpl struct {
	applyQueueFunc func(*queueOptions) error
}

func (x *queueOptionImpl) applyQueue(opts *queueOptions) error {
	return x.applyQueueFunc(opts)
}

// WithQueueLogger sets the structured logger for the queue.
func WithQueueLogger(logger *logiface.Logger[logiface.Event]) QueueOption {
	return &queueOptionImpl{func(opts *queueOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithQueueName sets the name attached to the queue's log events.
func WithQueueName(name string) QueueOption {
	return &queueOptionImpl{func(opts *queueOptions) error {
		opts.name = name
		return nil
	}}
}

// WithDrain sets whether closures still queued at Stop are executed before
// the worker exits. When disabled (default), they are discarded.
func WithDrain(enabled bool) QueueOption {
	return &queueOptionImpl{func(opts *queueOptions) error {
		opts.drain = enabled
		return nil
	}}
}

// resolveQueueOptions applies QueueOption instances to queueOptions.
func resolveQueueOptions(opts []QueueOption) (*queueOptions, error) {
	cfg := &queueOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyQueue(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worklet

import (
	"fmt"

	eventloop "github.com/joeycumines/go-eventloop"
)

type (
	// HostInvoker schedules closures onto the host ("javascript") thread.
	//
	// Implementations must be safe for concurrent use, execute each accepted
	// closure exactly once, asynchronously, and preserve submission order
	// per submitting goroutine. Invoke must not block on the host thread.
	HostInvoker interface {
		Invoke(fn func()) error
	}

	// InvokerFunc adapts a function to [HostInvoker].
	InvokerFunc func(fn func()) error

	// LoopInvoker is a [HostInvoker] backed by an [eventloop.Loop], i.e. the
	// host thread is the loop's goroutine.
	LoopInvoker struct {
		loop *eventloop.Loop
	}
)

var (
	_ HostInvoker = InvokerFunc(nil)
	_ HostInvoker = (*LoopInvoker)(nil)
)

// Invoke implements [HostInvoker].
func (f InvokerFunc) Invoke(fn func()) error { return f(fn) }

// NewLoopInvoker returns a [HostInvoker] that submits to loop. The loop may
// be submitted to before it is run, see [eventloop.Loop.Submit].
func NewLoopInvoker(loop *eventloop.Loop) *LoopInvoker {
	if loop == nil {
		panic(`worklet: nil event loop`)
	}
	return &LoopInvoker{loop: loop}
}

// Loop returns the underlying event loop.
func (x *LoopInvoker) Loop() *eventloop.Loop { return x.loop }

// Invoke implements [HostInvoker].
func (x *LoopInvoker) Invoke(fn func()) error {
	if err := x.loop.Submit(fn); err != nil {
		return fmt.Errorf("worklet: event loop submit: %w", err)
	}
	return nil
}

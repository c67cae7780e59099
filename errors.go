// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worklet

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrQueueStopped is returned by [DispatchQueue.Submit] (and the
	// scheduling methods built on it) once shutdown has been requested.
	ErrQueueStopped = errors.New("worklet: dispatch queue has been stopped")

	// ErrNilClosure is returned when a nil closure is submitted.
	ErrNilClosure = errors.New("worklet: nil closure")

	// ErrNotWorkletThread is returned by operations that must be called from
	// the dispatch queue's worker goroutine, when called from anywhere else.
	ErrNotWorkletThread = errors.New("worklet: not called from the worklet thread")

	// ErrOnWorkletThread is returned by blocking operations that would
	// deadlock if called from the worker goroutine.
	ErrOnWorkletThread = errors.New("worklet: cannot block on the worklet thread")

	// ErrNotCallable is returned by [Context.EvaluateInWorkletRuntime] when the
	// evaluated source does not produce a function.
	ErrNotCallable = errors.New("worklet: evaluated value is not callable")

	// ErrContextClosed is returned when deriving from, or scheduling on, a
	// context whose worklet resources have been released.
	ErrContextClosed = errors.New("worklet: context has been closed")

	// ErrNilRuntime is returned by [New] when the main runtime is nil, or when
	// a [RuntimeFactory] returns a nil runtime without an error.
	ErrNilRuntime = errors.New("worklet: nil runtime")

	// ErrNilInvoker is returned by [New] when the host invoker is nil.
	ErrNilInvoker = errors.New("worklet: nil host invoker")

	// ErrNilContext is returned by [NewDerived] when the parent is nil.
	ErrNilContext = errors.New("worklet: nil parent context")

	// ErrClosureExited is reported when a scheduled closure calls
	// [runtime.Goexit]. On the worklet thread, the worker is replaced.
	ErrClosureExited = errors.New("worklet: closure exited its goroutine")

	// ErrInvokerRejected wraps failures returned by [HostInvoker.Invoke].
	ErrInvokerRejected = errors.New("worklet: host invoker rejected closure")
)

// PanicError wraps a value recovered from a panicking closure.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worklet: closure panicked: %v", e.Value)
}

// Unwrap returns the panic value, if it is an error, supporting
// [errors.Is] and [errors.As].
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ContextError annotates an error reported through a [Context] with the name
// of that context.
type ContextError struct {
	Err  error
	Name string
}

func (e *ContextError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("worklet context %q: unknown error", e.Name)
	}
	return fmt.Sprintf("worklet context %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ContextError) Unwrap() error {
	return e.Err
}

// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worklet

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/joeycumines/logiface"
)

// WorkletFunc is a closure scheduled onto one of a context's two threads.
// It receives the runtime owned by that thread. A returned error, or a
// panic, is reported through the context's [ErrorHandler], and never
// propagates to the thread that scheduled it.
type WorkletFunc func(rt Runtime) error

// Context holds a worklet runtime, driven by a dedicated worker thread, and
// a reference to the host's main runtime. It schedules closures onto either
// thread.
//
// A root context (see [New]) owns its worklet runtime and [DispatchQueue]. A
// derived context (see [NewDerived]) shares those of its parent, along with
// the main runtime, host invoker and error handler, but has its own name.
// Closures scheduled by any context in a chain run one at a time, on the
// same worker.
//
// All methods are safe for concurrent use, unless documented otherwise.
type Context struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	// mainRuntime is not owned, and must outlive the context
	mainRuntime  Runtime
	invoker      HostInvoker
	errorHandler *ErrorHandler
	worklet      *workletResources
	logger       *logiface.Logger[logiface.Event]

	name string

	closed  atomic.Bool
	derived bool
}

// New creates a root context. It creates a new worklet runtime (see
// [WithRuntimeFactory]), marks it with [WorkletRuntimeFlag], and starts a
// dedicated [DispatchQueue] for it.
//
// The mainRuntime is owned by the caller, and must remain valid for the
// lifetime of the context. It is only ever passed to closures run via
// invoker. If handler is nil, errors are logged (see
// [NewLoggingErrorHandler]).
//
// The only failures are invalid arguments and options, and failure to create
// the worklet runtime.
func New(name string, mainRuntime Runtime, invoker HostInvoker, handler *ErrorHandler, opts ...Option) (*Context, error) {
	if mainRuntime == nil {
		return nil, ErrNilRuntime
	}
	if invoker == nil {
		return nil, ErrNilInvoker
	}

	cfg, err := resolveContextOptions(opts)
	if err != nil {
		return nil, err
	}

	if handler == nil {
		handler = NewErrorHandler(NewLoggingErrorHandler(cfg.logger, nil))
	}

	rt, err := cfg.runtimeFactory(name, cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("worklet: failed to create worklet runtime: %w", err)
	}
	if rt == nil {
		return nil, ErrNilRuntime
	}

	// not yet visible to any other goroutine
	if err := markWorkletRuntime(rt); err != nil {
		return nil, err
	}

	queue, err := NewDispatchQueue(append([]QueueOption{
		WithQueueLogger(cfg.logger),
		WithQueueName(name),
		WithDrain(cfg.drain),
	}, cfg.queueOptions...)...)
	if err != nil {
		return nil, err
	}

	cfg.logger.Debug().
		Str(`context`, name).
		Log(`worklet context created`)

	return &Context{
		name:         name,
		mainRuntime:  mainRuntime,
		invoker:      invoker,
		errorHandler: handler,
		worklet:      newWorkletResources(rt, queue, cfg.logger),
		logger:       cfg.logger,
	}, nil
}

// NewDerived creates a context sharing the worklet runtime, dispatch queue,
// main runtime, host invoker and error handler of parent, under a new name.
//
// The derived context holds its own reference to the shared resources: it
// remains usable after parent is closed, and the worker is only stopped once
// every context sharing it has been closed. Only [WithLogger] applies, other
// options configure resources that derived contexts do not create. Console
// output of the shared worklet runtime is still written to the root's logger,
// tagged with the root's name.
func NewDerived(name string, parent *Context, opts ...Option) (*Context, error) {
	if parent == nil {
		return nil, ErrNilContext
	}

	cfg, err := resolveContextOptions(opts)
	if err != nil {
		return nil, err
	}
	logger := parent.logger
	if cfg.loggerSet {
		logger = cfg.logger
	}

	if parent.closed.Load() || !parent.worklet.acquire() {
		return nil, ErrContextClosed
	}

	logger.Debug().
		Str(`context`, name).
		Str(`parent`, parent.name).
		Log(`derived worklet context created`)

	return &Context{
		name:         name,
		mainRuntime:  parent.mainRuntime,
		invoker:      parent.invoker,
		errorHandler: parent.errorHandler,
		worklet:      parent.worklet,
		logger:       logger,
		derived:      true,
	}, nil
}

// Derive is an alias for NewDerived(name, x, opts...).
func (x *Context) Derive(name string, opts ...Option) (*Context, error) {
	return NewDerived(name, x, opts...)
}

// Name returns the name of the context.
func (x *Context) Name() string { return x.name }

// IsDerived reports whether the context was created by [NewDerived].
func (x *Context) IsDerived() bool { return x.derived }

// MainRuntime returns the main runtime, which must only be used from the
// host thread.
func (x *Context) MainRuntime() Runtime { return x.mainRuntime }

// Invoker returns the host invoker.
func (x *Context) Invoker() HostInvoker { return x.invoker }

// ErrorHandler returns the (shared) error handler.
func (x *Context) ErrorHandler() *ErrorHandler { return x.errorHandler }

// QueueStats returns the statistics of the (possibly shared) dispatch queue.
func (x *Context) QueueStats() QueueStats { return x.worklet.queue.Stats() }

// RunOnWorkletThread schedules fn to run on the worklet thread, with the
// worklet runtime. It returns immediately. Failures of fn are reported via
// [Context.RaiseError].
//
// An error is returned only if fn was not accepted, e.g. [ErrContextClosed]
// or [ErrQueueStopped].
func (x *Context) RunOnWorkletThread(fn WorkletFunc) error {
	if fn == nil {
		return ErrNilClosure
	}
	if x.closed.Load() {
		return ErrContextClosed
	}
	rt := x.worklet.runtime
	return x.worklet.queue.Submit(func() { x.invoke(rt, fn) })
}

// RunOnJavascriptThread schedules fn to run on the host thread, with the main
// runtime, via the host invoker. It returns immediately. Failures of fn are
// reported via [Context.RaiseError].
//
// An error is returned only if fn was not accepted, in which case it wraps
// [ErrInvokerRejected] (or is [ErrContextClosed]).
func (x *Context) RunOnJavascriptThread(fn WorkletFunc) error {
	if fn == nil {
		return ErrNilClosure
	}
	if x.closed.Load() {
		return ErrContextClosed
	}
	rt := x.mainRuntime
	if err := x.invoker.Invoke(func() { x.invoke(rt, fn) }); err != nil {
		return fmt.Errorf("%w: %w", ErrInvokerRejected, err)
	}
	return nil
}

// EvaluateInWorkletRuntime evaluates source in the worklet runtime, which
// must produce a callable value (e.g. a parenthesized function expression),
// and returns it. Compiled sources are cached per worklet runtime.
//
// It must be called on the worklet thread, i.e. from within a closure run via
// [Context.RunOnWorkletThread], otherwise it fails with [ErrNotWorkletThread].
func (x *Context) EvaluateInWorkletRuntime(source string) (goja.Value, error) {
	if !x.worklet.queue.IsWorkerThread() {
		return nil, ErrNotWorkletThread
	}

	program, err := x.worklet.compile(source)
	if err != nil {
		return nil, err
	}

	value, err := x.worklet.runtime.RunProgram(program)
	if err != nil {
		return nil, err
	}

	if _, ok := goja.AssertFunction(value); !ok {
		return nil, ErrNotCallable
	}

	return value, nil
}

// IsWorkletRuntime reports whether rt is a worklet runtime, see the package
// function of the same name.
func (x *Context) IsWorkletRuntime(rt Runtime) bool { return IsWorkletRuntime(rt) }

// RaiseError passes err, annotated with the context name (see
// [ContextError]), to the error handler, synchronously. It does not panic,
// and returns undefined, for use as the return value of functions exposed to
// a runtime.
func (x *Context) RaiseError(err error) goja.Value {
	x.errorHandler.Handle(&ContextError{Name: x.name, Err: err})
	return goja.Undefined()
}

// RaiseErrorf is a convenience for RaiseError(fmt.Errorf(format, args...)).
func (x *Context) RaiseErrorf(format string, args ...any) goja.Value {
	return x.RaiseError(fmt.Errorf(format, args...))
}

// Flush blocks until every closure scheduled on the worklet thread (by any
// context sharing it) before the call has run, or ctx is done. It must not
// be called from the worklet thread.
func (x *Context) Flush(ctx context.Context) error {
	return x.worklet.queue.Flush(ctx)
}

// HostObject returns a new object, in rt, exposing the context to
// interpreted code:
//
//   - name: read-only, the name of the context
//   - isWorkletRuntime(): whether rt is a worklet runtime
//
// It must be called from the thread that owns rt.
func (x *Context) HostObject(rt Runtime) *goja.Object {
	obj := rt.NewObject()
	name := x.name
	if err := obj.DefineAccessorProperty(`name`, rt.ToValue(func(goja.FunctionCall) goja.Value {
		return rt.ToValue(name)
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		panic(err)
	}
	if err := obj.Set(`isWorkletRuntime`, func(goja.FunctionCall) goja.Value {
		return rt.ToValue(IsWorkletRuntime(rt))
	}); err != nil {
		panic(err)
	}
	return obj
}

// Install sets [Context.HostObject] as the global key of rt. It must be
// called from the thread that owns rt.
func (x *Context) Install(rt Runtime, key string) error {
	return rt.Set(key, x.HostObject(rt))
}

// Shutdown releases this context's reference to the shared worklet
// resources. Once the last context sharing them is released, the worker is
// stopped (pending closures are discarded, unless [WithDrainOnShutdown]) and
// joined, then the worklet runtime is closed. Shutdown waits for the worker
// until ctx is done, in which case the runtime is closed asynchronously.
//
// Calls after the first are no-ops. The main runtime is never closed.
func (x *Context) Shutdown(ctx context.Context) error {
	if !x.closed.CompareAndSwap(false, true) {
		return nil
	}
	x.logger.Debug().
		Str(`context`, x.name).
		Log(`worklet context closed`)
	return x.worklet.release(ctx)
}

// Close is an alias for Shutdown(context.Background()).
func (x *Context) Close() error {
	return x.Shutdown(context.Background())
}

// invoke runs fn at a thread boundary, funneling its failure (if any) into
// RaiseError. A closure calling runtime.Goexit cannot be stopped from ending
// the goroutine, but is still reported, as ErrClosureExited.
func (x *Context) invoke(rt Runtime, fn WorkletFunc) {
	var returned bool
	defer func() {
		if !returned {
			x.RaiseError(ErrClosureExited)
		}
	}()
	err := callWorklet(rt, fn)
	returned = true
	if err != nil {
		x.RaiseError(err)
	}
}

// callWorklet converts a panic into a *PanicError. The handler is called
// outside the recover scope, so a misbehaving handler cannot cause a second
// report.
func callWorklet(rt Runtime, fn WorkletFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(rt)
}

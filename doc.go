// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package worklet runs isolated units of JavaScript work on a second
// runtime, driven by its own dedicated OS thread, alongside a host's main
// runtime.
//
// # Architecture
//
// A [Context] pairs two runtimes:
//   - the main runtime, owned by the host, only ever used on the host thread
//     (reached via a [HostInvoker], e.g. a [LoopInvoker] over an event loop)
//   - the worklet runtime, owned by the context, only ever used by the
//     worker goroutine of a [DispatchQueue]
//
// Work is scheduled onto either thread as a [WorkletFunc], which receives the
// runtime owned by the thread it runs on. The worklet runtime is never
// returned by any method, which keeps it on its thread.
//
// Every worklet runtime carries the global [WorkletRuntimeFlag], set to true,
// see [IsWorkletRuntime].
//
// # Derived Contexts
//
// [NewDerived] creates a context that shares the worklet runtime, dispatch
// queue, main runtime, host invoker and [ErrorHandler] of its parent, under a
// different name. Shared resources are reference counted, and torn down once,
// when the last context referencing them is closed.
//
// # Error Handling
//
// Failures never cross a thread boundary. An error returned by, or a panic
// recovered from, a scheduled closure is wrapped in a [ContextError] and
// passed to the context's [ErrorHandler], exactly once, on the thread where
// it occurred. A closure calling runtime.Goexit is reported as
// [ErrClosureExited], and the worklet thread's worker is replaced. Errors
// returned by the scheduling methods only indicate that the closure was not
// accepted.
//
// # Shutdown
//
// By default, closures still queued when the worker is stopped are
// discarded (and counted, see [QueueStats]). [WithDrainOnShutdown] runs them
// instead.
//
// # Usage
//
//	loop, err := eventloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go loop.Run(ctx)
//
//	wc, err := worklet.New(`worklet`, worklet.NewGojaRuntime(goja.New()), worklet.NewLoopInvoker(loop), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer wc.Close()
//
//	_ = wc.RunOnWorkletThread(func(rt worklet.Runtime) error {
//	    fn, err := wc.EvaluateInWorkletRuntime(`(function (a, b) { return a + b })`)
//	    if err != nil {
//	        return err
//	    }
//	    result, err := rt.Call(fn, nil, rt.ToValue(1), rt.ToValue(2))
//	    if err != nil {
//	        return err
//	    }
//	    return wc.RunOnJavascriptThread(func(rt worklet.Runtime) error {
//	        return rt.Set(`result`, result.Export())
//	    })
//	})
package worklet

// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worklet

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/joeycumines/logiface"
)

// workletResources are the worklet runtime and its dispatch queue, shared by
// a root context and every context derived from it. They are torn down once,
// when the last reference is released.
type workletResources struct {
	runtime Runtime
	queue   *DispatchQueue
	logger  *logiface.Logger[logiface.Event]

	// programs caches compiled worklet sources, keyed by source text.
	// Only accessed from the queue's worker.
	programs map[string]*goja.Program

	// released is closed after the runtime has been closed
	released chan struct{}

	refs atomic.Int64
}

func newWorkletResources(rt Runtime, queue *DispatchQueue, logger *logiface.Logger[logiface.Event]) *workletResources {
	x := &workletResources{
		runtime:  rt,
		queue:    queue,
		logger:   logger,
		programs: make(map[string]*goja.Program),
		released: make(chan struct{}),
	}
	x.refs.Store(1)
	return x
}

// acquire adds a reference, failing if the resources were already released.
func (x *workletResources) acquire() bool {
	for {
		n := x.refs.Load()
		if n <= 0 {
			return false
		}
		if x.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a reference, tearing down on the last one: the queue is
// stopped and joined, then the runtime is closed.
func (x *workletResources) release(ctx context.Context) error {
	if x.refs.Add(-1) != 0 {
		return nil
	}

	onWorker := x.queue.IsWorkerThread()
	err := x.queue.Stop(ctx)
	if onWorker || err != nil {
		// the worker is still running (at least) the current closure
		go func() {
			<-x.queue.Done()
			x.closeRuntime()
		}()
		return err
	}

	x.closeRuntime()
	return nil
}

func (x *workletResources) closeRuntime() {
	defer close(x.released)
	x.programs = nil
	if closer, ok := x.runtime.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			x.logger.Err().
				Err(err).
				Log(`failed to close worklet runtime`)
		}
	}
}

// compile returns the cached program for source, compiling it on a miss.
// Must only be called from the queue's worker.
func (x *workletResources) compile(source string) (*goja.Program, error) {
	if program, ok := x.programs[source]; ok {
		return program, nil
	}
	program, err := goja.Compile(`worklet.js`, source, false)
	if err != nil {
		return nil, err
	}
	x.programs[source] = program
	return program, nil
}

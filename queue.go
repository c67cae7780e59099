// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worklet

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// DispatchQueue is a FIFO work queue with exactly one dedicated worker
// goroutine, locked to its own OS thread for its entire lifetime.
//
// Closures submitted from a single goroutine execute in submission order,
// one at a time, exactly once (unless discarded by [DispatchQueue.Stop]).
// No ordering is promised between closures submitted concurrently from
// different goroutines.
//
// Closures are expected to be short and synchronous: a blocking closure
// stalls every other closure queued behind it.
type DispatchQueue struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	logger *logiface.Logger[logiface.Event]

	// wake has capacity 1, a pending signal is enough to wake the worker
	wake    chan struct{}
	started chan struct{}
	done    chan struct{}

	name string

	// mu guards pending, and state transitions away from StateRunning
	mu      sync.Mutex
	pending ingress

	state    queueState
	workerID atomic.Uint64
	threadID atomic.Int64

	submitted atomic.Uint64
	executed  atomic.Uint64
	discarded atomic.Uint64
	panicked  atomic.Uint64
	exited    atomic.Uint64

	drain bool
}

// QueueStats is a point-in-time snapshot of a [DispatchQueue]'s counters.
type QueueStats struct {
	// Submitted counts closures accepted by Submit.
	Submitted uint64
	// Executed counts closures that ran (including those that panicked).
	Executed uint64
	// Discarded counts closures dropped at shutdown.
	Discarded uint64
	// Panicked counts closures that panicked, recovered by the queue.
	Panicked uint64
	// Exited counts closures that called runtime.Goexit, each of which cost
	// the queue its worker, which was replaced.
	Exited uint64
	// Pending is the number of closures currently queued.
	Pending int
}

// NewDispatchQueue creates a queue and starts its worker. The queue is in
// [StateRunning] by the time this returns.
func NewDispatchQueue(opts ...QueueOption) (*DispatchQueue, error) {
	cfg, err := resolveQueueOptions(opts)
	if err != nil {
		return nil, err
	}

	q := &DispatchQueue{
		logger:  cfg.logger,
		name:    cfg.name,
		drain:   cfg.drain,
		wake:    make(chan struct{}, 1),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}

	go q.run(true)
	<-q.started

	return q, nil
}

// Submit enqueues fn for execution on the worker. It never blocks on the
// worker, and returns [ErrQueueStopped] once Stop has been called.
func (q *DispatchQueue) Submit(fn func()) error {
	if fn == nil {
		return ErrNilClosure
	}

	q.mu.Lock()
	if !q.state.acceptsWork() {
		q.mu.Unlock()
		return ErrQueueStopped
	}
	q.pending.Push(fn)
	q.mu.Unlock()

	q.submitted.Add(1)
	q.signal()

	return nil
}

// Stop requests shutdown and waits for the worker to exit, or for ctx to be
// done. Closures still queued are discarded, unless the queue was configured
// [WithDrain]. A closure that is already running is allowed to finish.
//
// Stop is idempotent. When called from the worker itself (from within a
// closure), it requests shutdown and returns immediately, as the worker
// cannot join itself.
func (q *DispatchQueue) Stop(ctx context.Context) error {
	q.requestStop()

	if q.IsWorkerThread() {
		return nil
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed once the worker has exited.
func (q *DispatchQueue) Done() <-chan struct{} {
	return q.done
}

// State returns the current queue state.
func (q *DispatchQueue) State() QueueState {
	return q.state.Load()
}

// Stats returns a snapshot of the queue's counters.
func (q *DispatchQueue) Stats() QueueStats {
	q.mu.Lock()
	pending := q.pending.Len()
	q.mu.Unlock()
	return QueueStats{
		Submitted: q.submitted.Load(),
		Executed:  q.executed.Load(),
		Discarded: q.discarded.Load(),
		Panicked:  q.panicked.Load(),
		Exited:    q.exited.Load(),
		Pending:   pending,
	}
}

// IsWorkerThread reports whether the caller is running on the worker.
func (q *DispatchQueue) IsWorkerThread() bool {
	id := q.workerID.Load()
	if id == 0 {
		return false
	}
	return getGoroutineID() == id
}

// ThreadID returns the id of the OS thread the worker is locked to, or 0 if
// the worker is not running, or the platform is not supported (only linux is).
func (q *DispatchQueue) ThreadID() int {
	return int(q.threadID.Load())
}

// Flush blocks until every closure submitted before the call has executed,
// or ctx is done. It returns [ErrQueueStopped] if the queue stopped first,
// and [ErrOnWorkletThread] if called from the worker.
func (q *DispatchQueue) Flush(ctx context.Context) error {
	if q.IsWorkerThread() {
		return ErrOnWorkletThread
	}

	marker := make(chan struct{})
	if err := q.Submit(func() { close(marker) }); err != nil {
		return err
	}

	select {
	case <-marker:
		return nil
	case <-q.done:
		select {
		case <-marker:
			return nil
		default:
			return ErrQueueStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *DispatchQueue) requestStop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		state := q.state.Load()
		if state != StateCreated && state != StateRunning {
			return
		}
		if q.state.TryTransition(state, StateStopping) {
			q.signal()
			return
		}
	}
}

func (q *DispatchQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run is the worker goroutine. If a closure calls [runtime.Goexit], the
// goroutine cannot be saved, so a replacement worker (on a new OS thread) is
// started to continue with the remaining closures.
func (q *DispatchQueue) run(first bool) {
	runtime.LockOSThread()

	q.workerID.Store(getGoroutineID())
	q.threadID.Store(int64(osThreadID()))
	if first {
		q.state.TryTransition(StateCreated, StateRunning)
		close(q.started)
	}

	q.logger.Debug().
		Str(`queue`, q.name).
		Int64(`thread`, q.threadID.Load()).
		Log(`dispatch queue started`)

	var returned bool
	defer func() {
		if !returned {
			// still locked, the thread is terminated with the goroutine
			q.replaceWorker()
			return
		}
		runtime.UnlockOSThread()
		q.finish()
	}()

	for {
		fn, ok := q.next()
		if !ok {
			returned = true
			return
		}
		q.execute(fn)
	}
}

// replaceWorker is called by a worker exiting via runtime.Goexit.
func (q *DispatchQueue) replaceWorker() {
	q.exited.Add(1)
	q.workerID.Store(0)
	q.threadID.Store(0)
	q.logger.Crit().
		Str(`queue`, q.name).
		Log(`dispatch queue closure exited the worker, replacing it`)
	go q.run(false)
}

// next blocks until a closure is available, returning false once the worker
// should exit.
func (q *DispatchQueue) next() (func(), bool) {
	for {
		q.mu.Lock()
		if q.state.Load() == StateStopping {
			if q.drain {
				if fn, ok := q.pending.Pop(); ok {
					q.mu.Unlock()
					return fn, true
				}
			}
			n := q.pending.Clear()
			q.mu.Unlock()
			if n > 0 {
				q.discarded.Add(uint64(n))
				q.logger.Warning().
					Str(`queue`, q.name).
					Int(`discarded`, n).
					Log(`dispatch queue stopped with pending closures`)
			}
			return nil, false
		}
		if fn, ok := q.pending.Pop(); ok {
			q.mu.Unlock()
			return fn, true
		}
		q.mu.Unlock()
		<-q.wake
	}
}

// execute runs fn with panic recovery. This is the last line of defence, the
// Context wraps every closure it submits so that failures are reported via
// its error handler instead.
func (q *DispatchQueue) execute(fn func()) {
	defer func() {
		q.executed.Add(1)
		if r := recover(); r != nil {
			q.panicked.Add(1)
			q.logger.Crit().
				Str(`queue`, q.name).
				Any(`panic`, r).
				Str(`stack`, string(debug.Stack())).
				Log(`dispatch queue closure panicked`)
		}
	}()
	fn()
}

func (q *DispatchQueue) finish() {
	q.workerID.Store(0)
	q.threadID.Store(0)
	q.state.Store(StateStopped)
	close(q.done)
	q.logger.Debug().
		Str(`queue`, q.name).
		Uint64(`executed`, q.executed.Load()).
		Log(`dispatch queue stopped`)
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

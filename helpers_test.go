// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worklet

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

const testTimeout = 5 * time.Second

// testHost is a host thread, backed by an event loop, owning a main runtime.
type testHost struct {
	loop    *eventloop.Loop
	main    *GojaRuntime
	invoker *LoopInvoker
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()

	loop, err := eventloop.New()
	if err != nil {
		t.Fatalf("Failed to create loop: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()

	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), testTimeout)
		defer shutdownCancel()
		_ = loop.Shutdown(shutdownCtx)
		cancel()
		select {
		case <-done:
		case <-time.After(testTimeout):
			t.Error("event loop did not exit")
		}
	})

	return &testHost{
		loop:    loop,
		main:    NewGojaRuntime(goja.New()),
		invoker: NewLoopInvoker(loop),
	}
}

// sync runs fn on the host thread, and waits for it to return.
func (h *testHost) sync(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	if err := h.invoker.Invoke(func() {
		defer close(done)
		fn()
	}); err != nil {
		t.Fatalf("Failed to invoke on host: %v", err)
	}
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for host thread")
	}
}

// errorRecorder is a deterministic error handler.
type errorRecorder struct {
	ch   chan error
	errs []error
	mu   sync.Mutex
}

func newErrorRecorder() *errorRecorder {
	return &errorRecorder{ch: make(chan error, 1024)}
}

func (x *errorRecorder) record(err error) {
	x.mu.Lock()
	x.errs = append(x.errs, err)
	x.mu.Unlock()
	select {
	case x.ch <- err:
	default:
	}
}

func (x *errorRecorder) handler() *ErrorHandler {
	return NewErrorHandler(x.record)
}

func (x *errorRecorder) errors() []error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]error(nil), x.errs...)
}

func (x *errorRecorder) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-x.ch:
		return err
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for reported error")
		return nil
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent writes.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.String()
}

func newTestLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(level),
	).Logger()
}

func newTestContext(t *testing.T, host *testHost, handler *ErrorHandler, opts ...Option) *Context {
	t.Helper()
	c, err := New(t.Name(), host.main, host.invoker, handler, opts...)
	if err != nil {
		t.Fatalf("Failed to create context: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		if err := c.Shutdown(ctx); err != nil {
			t.Errorf("Failed to shut down context: %v", err)
		}
	})
	return c
}

func flush(t *testing.T, c interface{ Flush(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for channel to close")
	}
}

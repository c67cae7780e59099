// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worklet

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// DefaultErrorLogRates are the per-category limits applied by
// [NewLoggingErrorHandler] when none are provided.
var DefaultErrorLogRates = map[time.Duration]int{
	time.Second: 10,
	time.Minute: 100,
}

type (
	// ErrorHandlerFunc receives failures reported through a [Context]. It is
	// called synchronously, on whichever goroutine detected the failure, and
	// must not panic.
	ErrorHandlerFunc func(err error)

	// ErrorHandler is a shared, swappable [ErrorHandlerFunc]. A single
	// instance is shared by a root context and all contexts derived from it.
	// It is safe for concurrent use.
	ErrorHandler struct {
		fn atomic.Pointer[ErrorHandlerFunc]
	}
)

// NewErrorHandler returns an ErrorHandler calling fn. A nil fn is valid, and
// results in reported errors being dropped.
func NewErrorHandler(fn ErrorHandlerFunc) *ErrorHandler {
	var h ErrorHandler
	h.Swap(fn)
	return &h
}

// Handle calls the current handler function with err, if any.
func (x *ErrorHandler) Handle(err error) {
	if x == nil {
		return
	}
	if fn := x.fn.Load(); fn != nil && *fn != nil {
		(*fn)(err)
	}
}

// Swap replaces the handler function, returning the previous one.
func (x *ErrorHandler) Swap(fn ErrorHandlerFunc) ErrorHandlerFunc {
	var next *ErrorHandlerFunc
	if fn != nil {
		next = &fn
	}
	if prev := x.fn.Swap(next); prev != nil {
		return *prev
	}
	return nil
}

// NewLoggingErrorHandler returns an [ErrorHandlerFunc] that logs each error
// at error level. Log events are rate limited per category (the error's
// concrete type and message), using the given rates, or
// [DefaultErrorLogRates] if rates is empty. It panics if rates are invalid,
// see [catrate.NewLimiter]. Suppressed events are counted, and
// the count (across all categories) is attached to the next logged event.
func NewLoggingErrorHandler(logger *logiface.Logger[logiface.Event], rates map[time.Duration]int) ErrorHandlerFunc {
	if len(rates) == 0 {
		rates = DefaultErrorLogRates
	}
	limiter := catrate.NewLimiter(rates)
	var suppressed atomic.Int64
	return func(err error) {
		if _, ok := limiter.Allow(errorCategory(err)); !ok {
			suppressed.Add(1)
			return
		}
		b := logger.Err().Err(err)
		if n := suppressed.Swap(0); n > 0 {
			b = b.Int64(`suppressed`, n)
		}
		var ctxErr *ContextError
		if errors.As(err, &ctxErr) {
			b = b.Str(`context`, ctxErr.Name)
		}
		b.Log(`worklet error`)
	}
}

type errorCategoryKey struct {
	typ string
	msg string
}

func errorCategory(err error) errorCategoryKey {
	if err == nil {
		return errorCategoryKey{}
	}
	return errorCategoryKey{typ: fmt.Sprintf(`%T`, err), msg: err.Error()}
}

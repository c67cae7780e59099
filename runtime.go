// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worklet

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/logiface"
)

// WorkletRuntimeFlag is the global property set (to true) on every worklet
// runtime, see [IsWorkletRuntime].
const WorkletRuntimeFlag = "__WORKLET_RUNTIME_FLAG"

type (
	// Runtime is an isolated interpreted-code execution environment, with
	// its own global scope.
	//
	// Implementations are NOT safe for concurrent use. A worklet runtime is
	// only ever handed to closures executed by its [DispatchQueue], and the
	// main runtime must only be used from the host thread.
	Runtime interface {
		// Get returns the global property key, or nil if it is not defined.
		Get(key string) goja.Value

		// Set assigns the global property key.
		Set(key string, value any) error

		// Evaluate runs source as a script, returning the completion value.
		// The name is used for stack traces.
		Evaluate(name, source string) (goja.Value, error)

		// RunProgram runs a program compiled by [goja.Compile].
		RunProgram(program *goja.Program) (goja.Value, error)

		// Call invokes fn, which must be callable. A nil this is treated as
		// undefined, which non-strict functions observe as the global object.
		Call(fn goja.Value, this goja.Value, args ...goja.Value) (goja.Value, error)

		// ToValue converts a Go value to a runtime value.
		ToValue(value any) goja.Value

		// NewObject creates an empty object.
		NewObject() *goja.Object
	}

	// RuntimeFactory creates the worklet runtime of a root [Context]. The
	// name is that of the root context, and the logger is the one configured
	// for it (possibly nil).
	//
	// If the returned runtime implements [io.Closer], it will be closed once
	// the last context referencing it is closed, after its dispatch queue has
	// stopped.
	RuntimeFactory func(name string, logger *logiface.Logger[logiface.Event]) (Runtime, error)

	// GojaRuntime implements [Runtime] using [goja.Runtime].
	GojaRuntime struct {
		vm       *goja.Runtime
		registry *require.Registry
	}

	// consolePrinter routes console output to a structured logger.
	// consolePrinter logs console output under the name the runtime was
	// created with, which contexts derived from its owner do not change.
	consolePrinter struct {
		logger *logiface.Logger[logiface.Event]
		name   string
	}
)

var (
	_ Runtime         = (*GojaRuntime)(nil)
	_ console.Printer = (*consolePrinter)(nil)
)

// NewGojaRuntime wraps an existing [goja.Runtime], e.g. the host's main
// runtime. The caller retains ownership of vm.
func NewGojaRuntime(vm *goja.Runtime) *GojaRuntime {
	if vm == nil {
		panic(`worklet: nil goja runtime`)
	}
	return &GojaRuntime{vm: vm}
}

// NewWorkletRuntime is the default [RuntimeFactory]. It creates a fresh goja
// runtime with a require registry enabled, and a console global whose output
// is written to logger.
func NewWorkletRuntime(name string, logger *logiface.Logger[logiface.Event]) (Runtime, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&consolePrinter{
		logger: logger,
		name:   name,
	}))
	registry.Enable(vm)
	console.Enable(vm)

	return &GojaRuntime{vm: vm, registry: registry}, nil
}

// VM returns the underlying goja runtime.
func (x *GojaRuntime) VM() *goja.Runtime { return x.vm }

// Registry returns the require registry, which is nil unless the runtime was
// created by [NewWorkletRuntime]. It may be used to register additional
// native modules, prior to their first require.
func (x *GojaRuntime) Registry() *require.Registry { return x.registry }

func (x *GojaRuntime) Get(key string) goja.Value {
	return x.vm.GlobalObject().Get(key)
}

func (x *GojaRuntime) Set(key string, value any) error {
	return x.vm.Set(key, value)
}

func (x *GojaRuntime) Evaluate(name, source string) (goja.Value, error) {
	return x.vm.RunScript(name, source)
}

func (x *GojaRuntime) RunProgram(program *goja.Program) (goja.Value, error) {
	return x.vm.RunProgram(program)
}

func (x *GojaRuntime) Call(fn goja.Value, this goja.Value, args ...goja.Value) (goja.Value, error) {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, ErrNotCallable
	}
	if this == nil {
		this = goja.Undefined()
	}
	return callable(this, args...)
}

func (x *GojaRuntime) ToValue(value any) goja.Value {
	return x.vm.ToValue(value)
}

func (x *GojaRuntime) NewObject() *goja.Object {
	return x.vm.NewObject()
}

// Close interrupts the runtime, so that any further attempt to run code in
// it fails with a [*goja.InterruptedError] wrapping [ErrContextClosed].
func (x *GojaRuntime) Close() error {
	x.vm.Interrupt(ErrContextClosed)
	return nil
}

// IsWorkletRuntime reports whether rt is a worklet runtime, i.e. whether the
// global [WorkletRuntimeFlag] is present and exactly true. Nil runtimes,
// including a nil *GojaRuntime, are not. It must be called from the thread
// that owns rt.
func IsWorkletRuntime(rt Runtime) bool {
	if rt == nil {
		return false
	}
	if g, ok := rt.(*GojaRuntime); ok && (g == nil || g.vm == nil) {
		return false
	}
	v := rt.Get(WorkletRuntimeFlag)
	if v == nil {
		return false
	}
	b, ok := v.Export().(bool)
	return ok && b
}

func markWorkletRuntime(rt Runtime) error {
	if err := rt.Set(WorkletRuntimeFlag, true); err != nil {
		return fmt.Errorf("worklet: failed to set %s: %w", WorkletRuntimeFlag, err)
	}
	return nil
}

func (x *consolePrinter) Log(s string) {
	x.logger.Info().
		Str(`runtime`, x.name).
		Str(`source`, `console`).
		Log(s)
}

func (x *consolePrinter) Warn(s string) {
	x.logger.Warning().
		Str(`runtime`, x.name).
		Str(`source`, `console`).
		Log(s)
}

func (x *consolePrinter) Error(s string) {
	x.logger.Err().
		Str(`runtime`, x.name).
		Str(`source`, `console`).
		Log(s)
}

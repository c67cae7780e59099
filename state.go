// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worklet

import (
	"sync/atomic"
)

// QueueState represents the lifecycle state of a [DispatchQueue].
//
// State Machine:
//
//	StateCreated → StateRunning    [worker goroutine started]
//	StateCreated → StateStopping   [Stop() before the worker registered]
//	StateRunning → StateStopping   [Stop()]
//	StateStopping → StateStopped   [worker exited]
//	StateStopped → (terminal)
//
// There is no transition back to a previous state.
type QueueState uint32

const (
	// StateCreated indicates the queue exists, but its worker has not started.
	StateCreated QueueState = iota
	// StateRunning indicates the worker is accepting and executing closures.
	StateRunning
	// StateStopping indicates shutdown was requested, and no further closures
	// are accepted.
	StateStopping
	// StateStopped indicates the worker has exited.
	StateStopped
)

// String returns a human-readable representation of the state.
func (s QueueState) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// queueState is a lock-free state holder.
type queueState struct {
	v atomic.Uint32
}

func (s *queueState) Load() QueueState {
	return QueueState(s.v.Load())
}

// Store is only valid for the terminal state.
func (s *queueState) Store(state QueueState) {
	s.v.Store(uint32(state))
}

func (s *queueState) TryTransition(from, to QueueState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// acceptsWork returns true if Submit may enqueue.
func (s *queueState) acceptsWork() bool {
	state := s.Load()
	return state == StateCreated || state == StateRunning
}

// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package worklet

import (
	"golang.org/x/sys/unix"
)

// osThreadID returns the id of the calling OS thread.
func osThreadID() int {
	return unix.Gettid()
}

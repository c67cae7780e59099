// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worklet

import (
	"sync"
)

// chunkSize is the number of closures per node of the ingress linked list.
const chunkSize = 128

// ingress is a chunked linked-list FIFO of closures.
//
// Thread Safety: NOT thread-safe. The [DispatchQueue] guards it with its
// mutex.
type ingress struct {
	head   *chunk
	tail   *chunk
	length int
}

var chunkPool = sync.Pool{
	New: func() any {
		return &chunk{}
	},
}

// chunk is a fixed-size node, with read/write cursors for O(1) push/pop.
type chunk struct {
	tasks   [chunkSize]func()
	next    *chunk
	readPos int
	pos     int
}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

// returnChunk clears every slot before pooling, so closures (and whatever
// they captured) are not retained.
func returnChunk(c *chunk) {
	for i := 0; i < c.pos; i++ {
		c.tasks[i] = nil
	}
	c.pos = 0
	c.readPos = 0
	c.next = nil
	chunkPool.Put(c)
}

// Push appends fn to the tail.
func (q *ingress) Push(fn func()) {
	if q.tail == nil {
		q.tail = newChunk()
		q.head = q.tail
	}

	if q.tail.pos == len(q.tail.tasks) {
		next := newChunk()
		q.tail.next = next
		q.tail = next
	}

	q.tail.tasks[q.tail.pos] = fn
	q.tail.pos++
	q.length++
}

// Pop removes and returns the head, or false if empty.
func (q *ingress) Pop() (func(), bool) {
	if q.head == nil || q.length == 0 {
		return nil, false
	}

	if q.head.readPos >= q.head.pos {
		// exhausted head; length > 0 guarantees a successor
		old := q.head
		q.head = q.head.next
		returnChunk(old)
	}

	fn := q.head.tasks[q.head.readPos]
	q.head.tasks[q.head.readPos] = nil
	q.head.readPos++
	q.length--

	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
		} else {
			old := q.head
			q.head = q.head.next
			returnChunk(old)
		}
	}

	return fn, true
}

// Len returns the number of queued closures.
func (q *ingress) Len() int {
	return q.length
}

// Clear drops every queued closure, returning how many were dropped.
func (q *ingress) Clear() int {
	n := q.length
	for c := q.head; c != nil; {
		next := c.next
		returnChunk(c)
		c = next
	}
	q.head = nil
	q.tail = nil
	q.length = 0
	return n
}

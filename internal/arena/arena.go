// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package arena implements fixed-capacity scoped scratch buffers.
//
// An Arena plays the role of the on-chip scratch memory of a block: a single allocation is carved into
// sub-slices with Alloc, and everything is released at once with Reset when the block completes.
package arena

import (
	"sync"

	"github.com/pkg/errors"
)

// Arena is a bump allocator over a fixed-capacity slice of T.
//
// It is not safe for concurrent use: each block owns its arena for its whole lifetime.
type Arena[T any] struct {
	data []T
	used int
}

// New creates an Arena with the given capacity (number of elements of T).
func New[T any](capacity int) *Arena[T] {
	return &Arena[T]{data: make([]T, capacity)}
}

// Cap returns the total capacity of the arena.
func (a *Arena[T]) Cap() int { return len(a.data) }

// Used returns the number of elements currently allocated.
func (a *Arena[T]) Used() int { return a.used }

// Alloc returns a zeroed slice of n elements carved from the arena.
//
// It returns an error if the arena doesn't have enough capacity left.
func (a *Arena[T]) Alloc(n int) ([]T, error) {
	if n < 0 || a.used+n > len(a.data) {
		return nil, errors.Errorf("arena: cannot allocate %d elements, %d of %d in use", n, a.used, len(a.data))
	}
	s := a.data[a.used : a.used+n : a.used+n]
	a.used += n
	clear(s)
	return s, nil
}

// MustAlloc is like Alloc, but panics if there is not enough capacity.
func (a *Arena[T]) MustAlloc(n int) []T {
	s, err := a.Alloc(n)
	if err != nil {
		panic(err)
	}
	return s
}

// Reset releases all previous allocations. Slices previously returned by Alloc must no longer be used.
func (a *Arena[T]) Reset() {
	a.used = 0
}

// Pool of arenas of the same capacity, shared by the blocks of one invocation.
type Pool[T any] struct {
	capacity int
	pool     sync.Pool
}

// NewPool creates a pool of arenas of the given capacity.
func NewPool[T any](capacity int) *Pool[T] {
	p := &Pool[T]{capacity: capacity}
	p.pool.New = func() any { return New[T](capacity) }
	return p
}

// Capacity of the arenas returned by Get.
func (p *Pool[T]) Capacity() int { return p.capacity }

// Get an arena from the pool, already reset.
func (p *Pool[T]) Get() *Arena[T] {
	a := p.pool.Get().(*Arena[T])
	a.Reset()
	return a
}

// Put the arena back in the pool. After this any references to the arena or its allocations should be dropped.
func (p *Pool[T]) Put(a *Arena[T]) {
	if a == nil || a.Cap() != p.capacity {
		return
	}
	a.Reset()
	p.pool.Put(a)
}

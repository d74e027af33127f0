// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xsync implements synchronization primitives not provided by the standard library.
package xsync

import (
	"sync"

	"github.com/pkg/errors"
)

// Barrier is a reusable (cyclic) synchronization point for a fixed number of parties.
//
// Each call to Wait blocks until all parties have called Wait for the current generation,
// at which point all of them are released and the barrier is armed again for the next generation.
//
// It uses sync.Cond to coordinate the parties.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	arrived    int
	generation uint64
}

// NewBarrier creates a Barrier for the given number of parties, which must be >= 1.
func NewBarrier(parties int) *Barrier {
	if parties < 1 {
		panic(errors.Errorf("xsync.NewBarrier(%d): parties must be >= 1", parties))
	}
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Parties returns the number of parties the barrier waits for.
func (b *Barrier) Parties() int {
	return b.parties
}

// Wait blocks until all parties reached the barrier.
//
// It returns the generation that was completed, starting from 0.
func (b *Barrier) Wait() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	generation := b.generation
	b.arrived++
	if b.arrived == b.parties {
		b.arrived = 0
		b.generation++
		b.cond.Broadcast()
		return generation
	}
	// Loop because sync.Cond.Wait() can have spurious wakeups.
	for generation == b.generation {
		b.cond.Wait()
	}
	return generation
}

// Generation returns the number of completed generations.
func (b *Barrier) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

import (
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/xprop/pkg/support/xsync"
)

const fragmentSize = FragmentDim * FragmentDim

// reductionEngine accumulates the outer products of the staged tiles into the block's accumulators.
type reductionEngine struct {
	params  *Params
	staging *staging
	remap   Remap

	// acc holds NumFragments fragments of fragmentSize values, row-major in (channel, batch) within a fragment.
	acc []float32

	truncates          bool
	truncationInterval int
	truncator          truncator
}

func newReductionEngine(params *Params, buffers *staging, remap Remap, acc []float32) *reductionEngine {
	e := &reductionEngine{
		params:  params,
		staging: buffers,
		remap:   remap,
		acc:     acc,
	}
	clear(e.acc)
	if params.Truncates() {
		e.truncates = true
		e.truncationInterval = params.TruncationInterval()
		e.truncator = newTruncator(params.Rescale)
	}
	return e
}

// fragment returns the accumulators of the fragment.
func (e *reductionEngine) fragment(fragment int) []float32 {
	return e.acc[fragment*fragmentSize : (fragment+1)*fragmentSize]
}

// consume accumulates the GroupSize positions of the read half of the staging buffers.
func (e *reductionEngine) consume(offsets bufferOffsets) {
	filterTile := e.staging.filterTile(offsets.read)
	inputTile := e.staging.inputTile(offsets.read)
	for fragment := range NumFragments {
		kBase, nBase := outputFragment(fragment)
		kChunk, nChunk := kBase/FragmentDim, nBase/FragmentDim
		acc := e.fragment(fragment)
		for row := range GroupSize {
			fIdx := row*TileK + e.remap.Slot(row, kChunk, TileK/FragmentDim)*FragmentDim
			iIdx := row*TileN + e.remap.Slot(row, nChunk, TileN/FragmentDim)*FragmentDim
			f := filterTile[fIdx : fIdx+FragmentDim]
			x := inputTile[iIdx : iIdx+FragmentDim]
			for i, fi := range f {
				accRow := acc[i*FragmentDim : (i+1)*FragmentDim]
				for j, xj := range x {
					// Rounding the product explicitly prevents fused multiply-adds, keeping results reproducible.
					accRow[j] += float32(fi * xj)
				}
			}
		}
	}
}

// dueForTruncation returns whether the truncation step follows the given iteration.
func (e *reductionEngine) dueForTruncation(iteration int) bool {
	return e.truncates && (iteration+1)%e.truncationInterval == 0
}

// reduce runs the main loop over all the reduction groups.
func (e *reductionEngine) reduce(st stager, pipeline Pipeline) {
	numIterations := e.params.NumIterations()
	if numIterations == 0 {
		return
	}
	if pipeline == Sequential {
		e.reduceSequential(st, numIterations)
		return
	}
	e.reduceOverlapped(st, numIterations)
}

// reduceSequential interleaves staging and reduction in a single goroutine:
// stage(0); [stage(i+1); consume(i); swap] ...
func (e *reductionEngine) reduceSequential(st stager, numIterations int) {
	offsets := newBufferOffsets()
	st.stage(0, offsets)
	offsets.advance()
	for iteration := range numIterations {
		if iteration+1 < numIterations {
			st.stage(iteration+1, offsets)
		}
		e.step(iteration, offsets)
		offsets.advance()
	}
}

// reduceOverlapped runs the stager in its own goroutine. The stager works one iteration ahead, and the
// barrier separates "finished reading the current half" from "start writing on it".
//
// A panic while staging (a mis-invoked kernel reading out of its buffers) stops the staging, but the stager
// keeps meeting the barrier so the engine can finish; the panic is then re-raised in the engine goroutine.
func (e *reductionEngine) reduceOverlapped(st stager, numIterations int) {
	barrier := xsync.NewBarrier(2)
	var wg sync.WaitGroup
	var stagingPanic any
	wg.Add(1)
	go func() {
		defer wg.Done()
		offsets := newBufferOffsets()
		for iteration := range numIterations {
			if stagingPanic == nil {
				stagingPanic = exceptions.Try(func() { st.stage(iteration, offsets) })
			}
			barrier.Wait()
			offsets.advance()
		}
	}()

	offsets := newBufferOffsets()
	barrier.Wait()
	offsets.advance()
	for iteration := range numIterations {
		e.step(iteration, offsets)
		if iteration+1 < numIterations {
			barrier.Wait()
			offsets.advance()
		}
	}
	wg.Wait()
	if stagingPanic != nil {
		panic(stagingPanic)
	}
}

// step consumes one iteration and, when due, rounds the accumulators.
func (e *reductionEngine) step(iteration int, offsets bufferOffsets) {
	e.consume(offsets)
	if e.dueForTruncation(iteration) {
		e.truncator.apply(e.acc)
	}
}

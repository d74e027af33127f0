// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStager stages, for iteration i, a single row of ones in the filter and i+1 in the input.
type countingStager struct {
	buffers *staging
	remap   Remap
	panicAt int
	staged  []int
}

func (s *countingStager) stage(iteration int, offsets bufferOffsets) {
	if iteration == s.panicAt {
		panic("staging failed")
	}
	s.staged = append(s.staged, iteration)
	filterTile, inputTile := s.buffers.filterTile(offsets.write), s.buffers.inputTile(offsets.write)
	for col := range TileK {
		filterTile[physicalIndex(s.remap, 0, col, TileK)] = 1
	}
	for col := range TileN {
		inputTile[physicalIndex(s.remap, 0, col, TileN)] = float32(iteration + 1)
	}
}

func newTestEngine(lutSize int, remap Remap) (*reductionEngine, *staging) {
	buffers := &staging{filter: make([]float32, 2*filterHalf), input: make([]float32, 2*inputHalf)}
	params := &Params{LUTSize: lutSize, Flags: FormatFloat32}
	return newReductionEngine(params, buffers, remap, make([]float32, NumFragments*fragmentSize)), buffers
}

func TestConsume(t *testing.T) {
	for _, remap := range []Remap{IdentityRemap{}, XORRemap{}} {
		engine, buffers := newTestEngine(GroupSize, remap)
		offsets := newBufferOffsets()
		filterTile, inputTile := buffers.filterTile(offsets.read), buffers.inputTile(offsets.read)
		for row := range GroupSize {
			for col := range TileK {
				filterTile[physicalIndex(remap, row, col, TileK)] = float32(col)
			}
			for col := range TileN {
				inputTile[physicalIndex(remap, row, col, TileN)] = float32(row + 1)
			}
		}
		engine.consume(offsets)
		// acc[k][n] = Σ_row k * (row+1) = 36 * k
		for fragment := range NumFragments {
			kFrag, _ := outputFragment(fragment)
			acc := engine.fragment(fragment)
			for i := range FragmentDim {
				for j := range FragmentDim {
					require.Equal(t, float32(36*(kFrag+i)), acc[i*FragmentDim+j], "remap %s, fragment %d", remap.Name(), fragment)
				}
			}
		}
	}
}

func TestReducePipelines(t *testing.T) {
	const numIterations = 5
	for _, pipeline := range []Pipeline{Sequential, Overlapped} {
		engine, buffers := newTestEngine(numIterations*GroupSize-3, XORRemap{})
		st := &countingStager{buffers: buffers, remap: XORRemap{}, panicAt: -1}
		engine.reduce(st, pipeline)
		assert.Equal(t, []int{0, 1, 2, 3, 4}, st.staged, "pipeline %s", pipeline)
		// Σ (i+1) for i < numIterations.
		for _, value := range engine.acc {
			require.Equal(t, float32(15), value, "pipeline %s", pipeline)
		}
	}
}

func TestReduceStagingPanic(t *testing.T) {
	for _, pipeline := range []Pipeline{Sequential, Overlapped} {
		engine, buffers := newTestEngine(6*GroupSize, IdentityRemap{})
		st := &countingStager{buffers: buffers, remap: IdentityRemap{}, panicAt: 2}
		require.Panics(t, func() { engine.reduce(st, pipeline) }, "pipeline %s", pipeline)
	}
}

func TestDueForTruncation(t *testing.T) {
	engine, _ := newTestEngine(GroupSize, IdentityRemap{})
	assert.False(t, engine.dueForTruncation(0))

	params := &Params{LUTSize: 20 * GroupSize, Flags: FormatInt16 | 3<<FlagsTruncationShift, Rescale: 0.5}
	buffers := &staging{filter: make([]float32, 2*filterHalf), input: make([]float32, 2*inputHalf)}
	engine = newReductionEngine(params, buffers, IdentityRemap{}, make([]float32, NumFragments*fragmentSize))
	var due []int
	for iteration := range 10 {
		if engine.dueForTruncation(iteration) {
			due = append(due, iteration)
		}
	}
	assert.Equal(t, []int{2, 5, 8}, due)

	engine.acc[0] = 5.1
	engine.step(2, newBufferOffsets())
	assert.Equal(t, float32(6), engine.acc[0])
}

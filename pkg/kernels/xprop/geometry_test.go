// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingLaneCoversStagingOnce(t *testing.T) {
	var filterSeen [GroupSize][TileK]int
	var inputSeen [GroupSize][TileN]int
	for lane := range BlockLanes {
		row, filterCol, inputCol := streamingLane(lane)
		require.Less(t, row, GroupSize)
		for col := filterCol; col < filterCol+filterRun; col++ {
			filterSeen[row][col]++
		}
		for col := inputCol; col < inputCol+inputRun; col++ {
			inputSeen[row][col]++
		}
	}
	for row := range GroupSize {
		for col := range TileK {
			assert.Equal(t, 1, filterSeen[row][col], "filter (%d, %d)", row, col)
		}
		for col := range TileN {
			assert.Equal(t, 1, inputSeen[row][col], "input (%d, %d)", row, col)
		}
	}
	row, filterCol, inputCol := streamingLane(33)
	assert.Equal(t, []int{1, 2, 4}, []int{row, filterCol, inputCol})
}

func TestOutputFragmentCoversTileOnce(t *testing.T) {
	var seen [TileK][TileN]int
	for fragment := range NumFragments {
		k, n := outputFragment(fragment)
		for i := range FragmentDim {
			for j := range FragmentDim {
				seen[k+i][n+j]++
			}
		}
	}
	for k := range TileK {
		for n := range TileN {
			require.Equal(t, 1, seen[k][n], "output (%d, %d)", k, n)
		}
	}
	k, n := outputFragment(17)
	assert.Equal(t, 8, k)
	assert.Equal(t, 8, n)
}

func TestResolveGeometry(t *testing.T) {
	params := &Params{
		D: 3, H: 6, W: 6, N: 200, M: 2, P: 3, Q: 3, K: 100, KOffset: 0,
		StrideD: 1, StrideH: 2, StrideW: 2, PadD: 0, PadH: 1, PadW: 1,
		Grid: Grid{KBlocks: 2, NBlocks: 2, SpatialBlocks: 20},
	}
	geom := resolveGeometry(params, BlockCoord{K: 1, N: 1, Spatial: 14})
	assert.Equal(t, 64, geom.kBase)
	assert.Equal(t, 128, geom.nBase)
	assert.Equal(t, []int{1, 1, 2}, []int{geom.m, geom.p, geom.q})
	assert.True(t, geom.spatialValid)
	assert.Equal(t, []int{1, 1, 3}, []int{geom.z0, geom.y0, geom.x0})
	assert.Equal(t, ((1*6+1)*6+3)*200, geom.originAddr)

	assert.True(t, geom.channelValid(params, 35))
	assert.False(t, geom.channelValid(params, 36))
	assert.True(t, geom.batchValid(params, 71))
	assert.False(t, geom.batchValid(params, 72))
	assert.True(t, geom.inputInBounds(params, 1, 0, 2))
	assert.False(t, geom.inputInBounds(params, 2, 0, 0))
	assert.False(t, geom.inputInBounds(params, 0, 0, 3))

	// The first output row reads the padding.
	geom = resolveGeometry(params, BlockCoord{Spatial: 0})
	assert.Equal(t, []int{0, -1, -1}, []int{geom.z0, geom.y0, geom.x0})
	assert.False(t, geom.inputInBounds(params, 0, 0, 0))
	assert.True(t, geom.inputInBounds(params, 0, 1, 1))

	// Over-allocated spatial blocks.
	geom = resolveGeometry(params, BlockCoord{Spatial: 18})
	assert.False(t, geom.spatialValid)
}

func TestGridCoord(t *testing.T) {
	grid := Grid{KBlocks: 3, NBlocks: 2, SpatialBlocks: 5}
	require.Equal(t, 30, grid.NumBlocks())
	seen := make(map[BlockCoord]bool)
	for blockIdx := range grid.NumBlocks() {
		coord := grid.Coord(blockIdx)
		require.False(t, seen[coord], "coordinate %+v repeated", coord)
		seen[coord] = true
		require.Equal(t, blockIdx, grid.Index(coord))
	}
	// K blocks vary fastest.
	assert.Equal(t, BlockCoord{K: 1}, grid.Coord(1))
	assert.Equal(t, BlockCoord{N: 1}, grid.Coord(3))
	assert.Equal(t, BlockCoord{Spatial: 1}, grid.Coord(6))
}

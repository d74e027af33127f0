// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemapIsInvertible(t *testing.T) {
	for _, remap := range []Remap{IdentityRemap{}, XORRemap{}} {
		for _, numChunks := range []int{TileK / FragmentDim, TileN / FragmentDim} {
			for row := range GroupSize {
				used := make([]bool, numChunks)
				for chunk := range numChunks {
					slot := remap.Slot(row, chunk, numChunks)
					require.True(t, slot >= 0 && slot < numChunks, "%s: slot %d out of range", remap.Name(), slot)
					require.False(t, used[slot], "%s: slot %d used twice in row %d", remap.Name(), slot, row)
					used[slot] = true
					require.Equal(t, chunk, remap.Logical(row, slot, numChunks))
				}
			}
		}
	}
	assert.Equal(t, 3^5, XORRemap{}.Slot(5, 3, 8))
	assert.Equal(t, 3, IdentityRemap{}.Slot(5, 3, 8))
}

func TestPhysicalIndexIsPermutation(t *testing.T) {
	for _, remap := range []Remap{IdentityRemap{}, XORRemap{}} {
		used := make([]bool, inputHalf)
		for row := range GroupSize {
			for col := range TileN {
				idx := physicalIndex(remap, row, col, TileN)
				require.False(t, used[idx], "%s: index %d used twice", remap.Name(), idx)
				used[idx] = true
				// Columns of a chunk stay contiguous, within the row.
				require.Equal(t, col%FragmentDim, idx%FragmentDim)
				require.Equal(t, row, idx/TileN)
			}
		}
	}
}

func TestRemapByName(t *testing.T) {
	assert.Equal(t, XORRemap{}, remapByName("xor"))
	assert.Equal(t, IdentityRemap{}, remapByName("identity"))
	assert.Nil(t, remapByName("rotate"))
}

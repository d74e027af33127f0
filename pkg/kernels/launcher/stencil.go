// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"github.com/gomlx/xprop/pkg/kernels/xprop"
)

// BuildStencil builds the stencil table of the convolution: one entry per reduction position
// (c, t, r, s), in that order, ReductionLength() entries in total.
//
// The deltas are relative to the base of the channel of the position (see xprop.StencilEntry), so the
// entries repeat with period TapsPerChannel.
func BuildStencil(conv Conv) []xprop.StencilEntry {
	c := conv.Normalized()
	taps := c.TapsPerChannel()
	table := make([]xprop.StencilEntry, c.ReductionLength())
	for position := range table {
		tap := position % taps
		t := tap / (c.R * c.S)
		r := (tap / c.S) % c.R
		s := tap % c.S
		dt, dr, ds := t*c.DilationD, r*c.DilationH, s*c.DilationW
		table[position] = xprop.StencilEntry{
			InputDelta:  ((dt*c.H+dr)*c.W + ds) * c.N,
			FilterDelta: tap * c.K,
			DT:          dt,
			DR:          dr,
			DS:          ds,
		}
	}
	return table
}

// ceilDiv returns ceil(a/b) for positive numbers.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Grid returns the grid of blocks for kCount output channels of the convolution.
func Grid(conv Conv, kCount int) xprop.Grid {
	m, p, q := conv.OutputDims()
	return xprop.Grid{
		KBlocks:       ceilDiv(kCount, xprop.TileK),
		NBlocks:       ceilDiv(conv.N, xprop.TileN),
		SpatialBlocks: m * p * q,
	}
}

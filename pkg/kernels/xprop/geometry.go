// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

// Lane tilings of a block.
//
// Streaming tiling: the 256 lanes are split in GroupSize rows of lanesPerRow lanes. Each lane loads a run of
// filterRun contiguous filter columns and inputRun contiguous input columns of its row.
//
// Output tiling: the output tile is split in NumFragments fragments of FragmentDim x FragmentDim values,
// fragmentsPerK of them along the batch axis.
const (
	lanesPerRow   = BlockLanes / GroupSize
	filterRun     = TileK / lanesPerRow
	inputRun      = TileN / lanesPerRow
	fragmentsPerK = TileN / FragmentDim
)

// streamingLane returns the staging row and the first columns loaded by the lane.
func streamingLane(lane int) (row, filterCol, inputCol int) {
	row = lane / lanesPerRow
	offset := lane % lanesPerRow
	return row, offset * filterRun, offset * inputRun
}

// outputFragment returns the first output channel and batch position (relative to the tile) of the fragment.
func outputFragment(fragment int) (k, n int) {
	return (fragment / fragmentsPerK) * FragmentDim, (fragment % fragmentsPerK) * FragmentDim
}

// blockGeometry holds the tensor coordinates of one block.
type blockGeometry struct {
	coord BlockCoord

	// kBase and nBase are the first output channel and batch position of the tile.
	kBase, nBase int

	// m, p, q are the output spatial coordinates of the block, and outSpatial their linearization (m*P+p)*Q+q.
	m, p, q    int
	outSpatial int

	// spatialValid is false for over-allocated spatial blocks, beyond the output extents.
	spatialValid bool

	// z0, y0, x0 is the input origin of the receptive field of the output position (may be in the padding),
	// and originAddr its address relative to the channel base: ((z0*H+y0)*W+x0)*N.
	z0, y0, x0 int
	originAddr int
}

// resolveGeometry decodes the block coordinate into tensor coordinates.
func resolveGeometry(params *Params, coord BlockCoord) blockGeometry {
	g := blockGeometry{
		coord: coord,
		kBase: params.KOffset + coord.K*TileK,
		nBase: coord.N * TileN,
	}
	pq := params.P * params.Q
	if pq > 0 && params.Q > 0 {
		g.m = coord.Spatial / pq
		g.p = (coord.Spatial % pq) / params.Q
		g.q = coord.Spatial % params.Q
	}
	g.outSpatial = coord.Spatial
	g.spatialValid = g.m < params.M && g.p < params.P && g.q < params.Q && pq > 0
	g.z0 = g.m*params.StrideD - params.PadD
	g.y0 = g.p*params.StrideH - params.PadH
	g.x0 = g.q*params.StrideW - params.PadW
	g.originAddr = ((g.z0*params.H+g.y0)*params.W + g.x0) * params.N
	return g
}

// channelValid is the per-lane output channel predicate, for a channel relative to the tile.
func (g *blockGeometry) channelValid(params *Params, k int) bool {
	return g.kBase+k < params.K
}

// batchValid is the per-lane batch predicate, for a batch position relative to the tile.
func (g *blockGeometry) batchValid(params *Params, n int) bool {
	return g.nBase+n < params.N
}

// inputInBounds returns whether the tap with the given offsets from the origin falls inside the input.
func (g *blockGeometry) inputInBounds(params *Params, dt, dr, ds int) bool {
	z, y, x := g.z0+dt, g.y0+dr, g.x0+ds
	return z >= 0 && z < params.D && y >= 0 && y < params.H && x >= 0 && x < params.W
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

// groupRow is what the stencil consumer derives for one reduction position of the current group.
type groupRow struct {
	// valid is the reduction-position predicate: position in [0, LUTSize).
	valid bool

	// inputValid additionally requires the tap to fall inside the input (not in the padding)
	// and the block to be spatially valid.
	inputValid bool

	// channel of the reduction position.
	channel int

	// inputAddr and filterAddr are the addresses of the row, before adding the batch position
	// or output channel of the lane and the tensor base offsets.
	inputAddr, filterAddr int
}

// stencilConsumer streams the stencil table of the invocation for one block.
type stencilConsumer struct {
	params *Params
	geom   *blockGeometry

	// table is the block's copy of the stencil table, living in the block arena.
	table []StencilEntry
}

// newStencilConsumer copies the first LUTSize entries of the stencil table into table, that must have
// room for them.
func newStencilConsumer(params *Params, geom *blockGeometry, table []StencilEntry) *stencilConsumer {
	copy(table, params.Stencil[:params.LUTSize])
	return &stencilConsumer{params: params, geom: geom, table: table[:params.LUTSize]}
}

// group fills rows with the positions [iteration*GroupSize, (iteration+1)*GroupSize).
//
// Positions beyond LUTSize (the final partial group) are marked invalid and never read from the table.
func (s *stencilConsumer) group(iteration int, rows *[GroupSize]groupRow) {
	params, geom := s.params, s.geom
	for row := range GroupSize {
		position := iteration*GroupSize + row
		if position < 0 || position >= len(s.table) {
			rows[row] = groupRow{}
			continue
		}
		entry := &s.table[position]
		channel := position / params.GroupRunLength
		rows[row] = groupRow{
			valid:      true,
			inputValid: geom.spatialValid && geom.inputInBounds(params, entry.DT, entry.DR, entry.DS),
			channel:    channel,
			inputAddr:  channel*params.InputChannelStride + geom.originAddr + entry.InputDelta,
			filterAddr: channel*params.FilterChannelStride + entry.FilterDelta,
		}
	}
}

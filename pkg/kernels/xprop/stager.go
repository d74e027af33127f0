// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

import (
	"github.com/gomlx/xprop/pkg/core/dtypes"
)

const (
	// filterHalf and inputHalf are the sizes of one half of the double-buffered staging tiles.
	filterHalf = GroupSize * TileK
	inputHalf  = GroupSize * TileN
)

// bufferOffsets of the read and write halves of the double-buffered staging, in units of halves.
//
// The offsets move by delta every iteration, and delta alternates sign: after two iterations they
// are back where they started. Each party of the pipeline carries its own copy.
type bufferOffsets struct {
	read, write, delta int
}

func newBufferOffsets() bufferOffsets {
	return bufferOffsets{read: 0, write: 1, delta: 1}
}

// advance swaps read and write halves.
func (o *bufferOffsets) advance() {
	o.read += o.delta
	o.write -= o.delta
	o.delta = -o.delta
}

// staging buffers of a block, each with two halves.
type staging struct {
	filter, input []float32
}

func (s *staging) filterTile(half int) []float32 {
	return s.filter[half*filterHalf : (half+1)*filterHalf]
}

func (s *staging) inputTile(half int) []float32 {
	return s.input[half*inputHalf : (half+1)*inputHalf]
}

// stager loads the tiles of one iteration into the write half of the staging buffers.
type stager interface {
	stage(iteration int, offsets bufferOffsets)
}

// operandStager is the stager for operands stored as T.
type operandStager[T dtypes.Storage] struct {
	params  *Params
	geom    *blockGeometry
	stencil *stencilConsumer
	remap   Remap
	staging *staging

	input, filter []T
	rows          [GroupSize]groupRow
}

func newOperandStager[T dtypes.Storage](params *Params, geom *blockGeometry, stencil *stencilConsumer,
	remap Remap, buffers *staging) *operandStager[T] {
	return &operandStager[T]{
		params:  params,
		geom:    geom,
		stencil: stencil,
		remap:   remap,
		staging: buffers,
		input:   params.Input.Flat.([]T),
		filter:  params.Filter.Flat.([]T),
	}
}

// stage implements stager. Every lane writes its runs of the tiles, zero where its predicates fail.
func (s *operandStager[T]) stage(iteration int, offsets bufferOffsets) {
	params, geom := s.params, s.geom
	s.stencil.group(iteration, &s.rows)
	filterTile := s.staging.filterTile(offsets.write)
	inputTile := s.staging.inputTile(offsets.write)
	filterBase := params.Filter.Offset + geom.kBase
	inputBase := params.Input.Offset + geom.nBase
	for lane := range BlockLanes {
		row, filterCol, inputCol := streamingLane(lane)
		groupRow := &s.rows[row]
		for col := filterCol; col < filterCol+filterRun; col++ {
			var value float32
			if groupRow.valid && geom.channelValid(params, col) {
				value = toFloat32(s.filter[filterBase+groupRow.filterAddr+col])
			}
			filterTile[physicalIndex(s.remap, row, col, TileK)] = value
		}
		for col := inputCol; col < inputCol+inputRun; col++ {
			var value float32
			if groupRow.inputValid && geom.batchValid(params, col) {
				value = toFloat32(s.input[inputBase+groupRow.inputAddr+col])
			}
			inputTile[physicalIndex(s.remap, row, col, TileN)] = value
		}
	}
}

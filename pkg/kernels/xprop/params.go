// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

import (
	"fmt"

	"github.com/gomlx/xprop/pkg/core/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

const (
	// TileK is the number of output channels covered by one block.
	TileK = 64

	// TileN is the number of batch positions covered by one block.
	TileN = 128

	// GroupSize is the number of reduction positions staged (and consumed) per iteration.
	GroupSize = 8

	// BlockLanes is the number of lanes of a block.
	BlockLanes = 256

	// FragmentDim is the side of the accumulator fragment: each fragment holds FragmentDim x FragmentDim
	// partial sums, for FragmentDim output channels and FragmentDim batch positions.
	FragmentDim = 8

	// NumFragments is the number of accumulator fragments covering the TileK x TileN output tile.
	NumFragments = (TileK / FragmentDim) * (TileN / FragmentDim)
)

// Flags layout: the low 8 bits select the storage format of the input and filter, and the bits
// from FlagsTruncationShift upward hold the truncation interval (in reduction groups).
const (
	FlagsFormatMask      = 0xFF
	FlagsTruncationShift = 8

	FormatFloat32 = 0
	FormatFloat16 = 1
	FormatInt16   = 2
)

// MakeFlags returns the flags bitfield for the storage format of the operands and the truncation interval.
// A truncationInterval of 0 disables truncation.
func MakeFlags(format dtypes.DType, truncationInterval int) (uint32, error) {
	var code uint32
	switch format {
	case dtypes.Float32:
		code = FormatFloat32
	case dtypes.Float16:
		code = FormatFloat16
	case dtypes.Int16:
		code = FormatInt16
	default:
		return 0, errors.Errorf("xprop: operand format %s not supported", format)
	}
	if truncationInterval < 0 {
		return 0, errors.Errorf("xprop: invalid truncation interval %d", truncationInterval)
	}
	return code | uint32(truncationInterval)<<FlagsTruncationShift, nil
}

// Tensor is a flat buffer in one of the storage formats, with its base address.
//
// Flat is a []float32, []float16.Float16 or []int16. The tensor element at address a is Flat[Offset+a].
type Tensor struct {
	Flat   any
	Offset int
}

// DType returns the storage format of the tensor, or dtypes.InvalidDType.
func (t Tensor) DType() dtypes.DType {
	return dtypes.FromFlat(t.Flat)
}

// Len returns the number of elements of the flat buffer.
func (t Tensor) Len() int {
	switch flat := t.Flat.(type) {
	case []float32:
		return len(flat)
	case []float16.Float16:
		return len(flat)
	case []int16:
		return len(flat)
	}
	return 0
}

// StencilEntry is one entry of the precomputed stencil table, for one reduction position.
//
// The deltas are relative to the base of the position's channel, which the kernel derives as
// position / Params.GroupRunLength:
//
//	input address  = channel*InputChannelStride + origin(m,p,q) + InputDelta + n
//	filter address = channel*FilterChannelStride + FilterDelta + k
//
// DT, DR and DS are the offsets of the filter tap with respect to the input origin of the output position,
// in depth, height and width. They are used to predicate loads falling into the padding.
type StencilEntry struct {
	InputDelta, FilterDelta int
	DT, DR, DS              int
}

// BlockCoord selects one block of the grid.
type BlockCoord struct {
	// K is the output-channel block, in units of TileK.
	K int
	// N is the batch block, in units of TileN.
	N int
	// Spatial is the output spatial block: one output position (m, p, q) linearized as (m*P+p)*Q+q.
	Spatial int
}

// Grid holds the dimensions of the grid of blocks of one invocation.
type Grid struct {
	KBlocks, NBlocks, SpatialBlocks int
}

// NumBlocks returns the total number of blocks.
func (g Grid) NumBlocks() int {
	return g.KBlocks * g.NBlocks * g.SpatialBlocks
}

// Coord converts a linear block index to its coordinate. The output-channel block varies fastest.
func (g Grid) Coord(blockIdx int) BlockCoord {
	return BlockCoord{
		K:       blockIdx % g.KBlocks,
		N:       (blockIdx / g.KBlocks) % g.NBlocks,
		Spatial: blockIdx / (g.KBlocks * g.NBlocks),
	}
}

// Index is the inverse of Coord.
func (g Grid) Index(c BlockCoord) int {
	return (c.Spatial*g.NBlocks+c.N)*g.KBlocks + c.K
}

// String implements fmt.Stringer.
func (g Grid) String() string {
	return fmt.Sprintf("[K:%d, N:%d, Spatial:%d]", g.KBlocks, g.NBlocks, g.SpatialBlocks)
}

// Params is the read-only invocation record of the kernel, filled by an external launcher.
//
// No numerical validation is done by the kernel: lutSize not matching the reduction length, strides
// not matching the layouts, or a grid not covering the output produce silently wrong results.
type Params struct {
	// Input I[C,D,H,W,N], Filter F[C,T,R,S,K] and Output O[K,M,P,Q,N] buffers.
	Input, Filter, Output Tensor

	// InputChannelStride is the distance between channels in the input (D*H*W*N).
	InputChannelStride int
	// FilterChannelStride is the distance between channels in the filter (T*R*S*K).
	FilterChannelStride int
	// OutputChannelStride is the distance between output channels in the output (M*P*Q*N).
	OutputChannelStride int

	// D, H, W are the input spatial extents, and N the batch extent.
	D, H, W, N int
	// M, P, Q are the output spatial extents.
	M, P, Q int
	// K is the total number of output channels of the filter and output tensors.
	K int
	// KOffset is the first output channel handled by the invocation (partial-channel invocations).
	KOffset int

	// Convolution strides and paddings, per spatial axis (depth, height, width).
	StrideD, StrideH, StrideW int
	PadD, PadH, PadW          int

	// Alpha and Beta are the coefficients of the affine blend: O = Alpha*acc + Beta*O.
	Alpha, Beta float32
	// Rescale converts the accumulator to output units in quantized mode only.
	Rescale float32

	// Flags selects the storage format and the truncation interval, see MakeFlags.
	Flags uint32

	// LUTSize is the reduction length C*T*R*S, and the length of Stencil.
	LUTSize int
	// GroupRunLength is the number of stencil positions per channel (T*R*S).
	GroupRunLength int
	// Stencil is the precomputed stencil table.
	Stencil []StencilEntry

	Grid Grid
}

// Format returns the storage format selected by the flags.
func (p *Params) Format() dtypes.DType {
	switch p.Flags & FlagsFormatMask {
	case FormatFloat32:
		return dtypes.Float32
	case FormatFloat16:
		return dtypes.Float16
	case FormatInt16:
		return dtypes.Int16
	}
	return dtypes.InvalidDType
}

// TruncationInterval returns the number of reduction groups between truncation steps, 0 if disabled.
func (p *Params) TruncationInterval() int {
	return int(p.Flags >> FlagsTruncationShift)
}

// Truncates returns whether the hardware-accurate truncation is active: only in quantized mode.
func (p *Params) Truncates() bool {
	return p.Format() == dtypes.Int16 && p.TruncationInterval() > 0
}

// NumIterations returns the trip count of the reduction loop.
func (p *Params) NumIterations() int {
	return (p.LUTSize + GroupSize - 1) / GroupSize
}

// checkStructure returns an error for records that cannot be executed at all: these would otherwise
// crash the runtime instead of producing wrong numbers.
func (p *Params) checkStructure() error {
	if p == nil {
		return errors.New("xprop: nil Params")
	}
	format := p.Format()
	if format == dtypes.InvalidDType {
		return errors.Errorf("xprop: invalid format in flags 0x%x", p.Flags)
	}
	if got := p.Input.DType(); got != format {
		return errors.Errorf("xprop: flags select %s operands, but input is %s", format, got)
	}
	if got := p.Filter.DType(); got != format {
		return errors.Errorf("xprop: flags select %s operands, but filter is %s", format, got)
	}
	if got := p.Output.DType(); got != dtypes.Float32 && got != dtypes.Float16 {
		return errors.Errorf("xprop: output must be Float32 or Float16, got %s", got)
	}
	if len(p.Stencil) < p.LUTSize {
		return errors.Errorf("xprop: stencil table has %d entries, but LUTSize is %d", len(p.Stencil), p.LUTSize)
	}
	if p.LUTSize > 0 && p.GroupRunLength <= 0 {
		return errors.Errorf("xprop: GroupRunLength must be > 0, got %d", p.GroupRunLength)
	}
	if p.Grid.KBlocks < 0 || p.Grid.NBlocks < 0 || p.Grid.SpatialBlocks < 0 {
		return errors.Errorf("xprop: invalid grid %s", p.Grid)
	}
	return nil
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/xprop/pkg/core/dtypes"
	"github.com/gomlx/xprop/pkg/kernels/xprop"
)

func TestDone(t *testing.T) {
	conv := Conv{C: 3, K: 70, N: 20, D: 2, H: 4, W: 4, T: 1, R: 3, S: 3, PadH: 1, PadW: 1, StrideW: 2}
	input := MakeTensor(dtypes.Int16, conv.InputSize())
	filter := MakeTensor(dtypes.Int16, conv.FilterSize())
	output := MakeTensor(dtypes.Float16, conv.OutputSize())
	params, err := Convolve(conv).Alpha(2).Beta(1).Rescale(0.25).TruncateEvery(3).Done(input, filter, output)
	require.NoError(t, err)

	assert.Equal(t, dtypes.Int16, params.Format())
	assert.Equal(t, 3, params.TruncationInterval())
	assert.True(t, params.Truncates())
	assert.Equal(t, []float32{2, 1, 0.25}, []float32{params.Alpha, params.Beta, params.Rescale})
	assert.Equal(t, []int{2, 4, 2}, []int{params.M, params.P, params.Q})
	assert.Equal(t, 2*4*4*20, params.InputChannelStride)
	assert.Equal(t, 9*70, params.FilterChannelStride)
	assert.Equal(t, 2*4*2*20, params.OutputChannelStride)
	assert.Equal(t, 27, params.LUTSize)
	assert.Equal(t, 9, params.GroupRunLength)
	assert.Len(t, params.Stencil, 27)
	assert.Equal(t, xprop.Grid{KBlocks: 2, NBlocks: 1, SpatialBlocks: 16}, params.Grid)
	assert.Equal(t, 4, params.NumIterations())
	assert.Equal(t, 1, params.StrideD)

	// Truncation is dropped for non-quantized operands.
	params, err = Convolve(conv).TruncateEvery(3).Done(
		MakeTensor(dtypes.Float32, conv.InputSize()), MakeTensor(dtypes.Float32, conv.FilterSize()), output)
	require.NoError(t, err)
	assert.Equal(t, 0, params.TruncationInterval())
}

func TestDoneErrors(t *testing.T) {
	conv := Conv{C: 1, K: 130, N: 8, D: 1, H: 3, W: 3, T: 1, R: 1, S: 1}
	input := MakeTensor(dtypes.Float32, conv.InputSize())
	filter := MakeTensor(dtypes.Float32, conv.FilterSize())
	output := MakeTensor(dtypes.Float32, conv.OutputSize())

	for name, build := range map[string]func() (*xprop.Params, error){
		"invalid conv": func() (*xprop.Params, error) {
			bad := conv
			bad.N = 0
			return Convolve(bad).Done(input, filter, output)
		},
		"mixed formats": func() (*xprop.Params, error) {
			return Convolve(conv).Done(input, MakeTensor(dtypes.Float16, conv.FilterSize()), output)
		},
		"int16 output": func() (*xprop.Params, error) {
			return Convolve(conv).Done(input, filter, MakeTensor(dtypes.Int16, conv.OutputSize()))
		},
		"unsupported buffer": func() (*xprop.Params, error) {
			return Convolve(conv).Done(xprop.Tensor{Flat: []float64{1}}, filter, output)
		},
		"short input": func() (*xprop.Params, error) {
			return Convolve(conv).Done(MakeTensor(dtypes.Float32, conv.InputSize()-1), filter, output)
		},
		"output offset past the end": func() (*xprop.Params, error) {
			return Convolve(conv).Done(input, filter, xprop.Tensor{Flat: output.Flat, Offset: 1})
		},
		"channels out of range": func() (*xprop.Params, error) {
			return Convolve(conv).OutputChannels(100, 64).Done(input, filter, output)
		},
		"partial channels not reaching K": func() (*xprop.Params, error) {
			return Convolve(conv).OutputChannels(0, 100).Done(input, filter, output)
		},
		"truncation without rescale": func() (*xprop.Params, error) {
			return Convolve(conv).Rescale(0).TruncateEvery(2).Done(
				MakeTensor(dtypes.Int16, conv.InputSize()), MakeTensor(dtypes.Int16, conv.FilterSize()), output)
		},
		"negative truncation": func() (*xprop.Params, error) {
			return Convolve(conv).TruncateEvery(-1).Done(
				MakeTensor(dtypes.Int16, conv.InputSize()), MakeTensor(dtypes.Int16, conv.FilterSize()), output)
		},
	} {
		_, err := build()
		assert.Error(t, err, name)
	}

	// Valid partial channel invocations.
	for _, channels := range [][2]int{{0, 64}, {64, 64}, {0, 128}, {64, 66}, {128, 2}} {
		params, err := Convolve(conv).OutputChannels(channels[0], channels[1]).Done(input, filter, output)
		require.NoError(t, err, "channels %v", channels)
		assert.Equal(t, channels[0], params.KOffset)
		assert.Equal(t, (channels[1]+63)/64, params.Grid.KBlocks)
	}
}

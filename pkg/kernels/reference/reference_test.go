// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reference

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/gomlx/xprop/pkg/kernels/launcher"
	"github.com/gomlx/xprop/pkg/kernels/xprop"
)

func TestConvolve(t *testing.T) {
	// 1D: C=1, W=4, S=3, K=2, N=1, padding 1.
	conv := launcher.Conv{C: 1, K: 2, N: 1, D: 1, H: 1, W: 4, T: 1, R: 1, S: 3, PadW: 1}
	input := []float64{1, 2, 3, 4}
	// Filter [C, T, R, S, K]: channel 0 sums the neighbors, channel 1 is the identity.
	filter := []float64{
		1, 0,
		1, 1,
		1, 0,
	}
	got := Convolve(conv, input, filter, nil, 1, 0)
	assert.Equal(t, []float64{3, 6, 9, 7, 1, 2, 3, 4}, got)

	prev := []float64{1, 1, 1, 1, 10, 10, 10, 10}
	got = Convolve(conv, input, filter, prev, 2, 0.5)
	assert.Equal(t, []float64{6.5, 12.5, 18.5, 14.5, 7, 9, 11, 13}, got)
}

func TestEmulateMatchesConvolve(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	conv := launcher.Conv{C: 3, K: 5, N: 3, D: 2, H: 4, W: 4, T: 2, R: 3, S: 3, PadH: 1, PadW: 1, StrideH: 2}
	input := make([]int16, conv.InputSize())
	for ii := range input {
		input[ii] = int16(rng.IntN(21) - 10)
	}
	filter := make([]int16, conv.FilterSize())
	for ii := range filter {
		filter[ii] = int16(rng.IntN(21) - 10)
	}
	inputF64 := ToFloat64(xprop.Tensor{Flat: input}, len(input))
	filterF64 := ToFloat64(xprop.Tensor{Flat: filter}, len(filter))

	// Small integers: the float32 sums are exact.
	want := Convolve(conv, inputF64, filterF64, nil, 0.5, 0)
	got := Emulate(conv, input, filter, nil, 1, 0, 0.5, 0)
	gotF64 := make([]float64, len(got))
	for ii, value := range got {
		gotF64[ii] = float64(value)
	}
	if diff := cmp.Diff(want, gotF64, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("Emulate mismatch (-want +got):\n%s", diff)
	}
	maxDiff, _ := MaxAbsDiff(got, want)
	assert.Zero(t, maxDiff)

	// With truncation every group, all accumulators (after rescale) are integers.
	truncated := Emulate(conv, input, filter, nil, 1, 0, 0.25, 1)
	for ii, value := range truncated {
		require.Equal(t, float32(int(value)), value, "output %d", ii)
	}
}

func TestToFloat64(t *testing.T) {
	flat := []float16.Float16{float16.Fromfloat32(1), float16.Fromfloat32(-0.5), float16.Fromfloat32(2)}
	assert.Equal(t, []float64{-0.5, 2}, ToFloat64(xprop.Tensor{Flat: flat, Offset: 1}, 2))
	assert.Panics(t, func() { ToFloat64(xprop.Tensor{Flat: []float64{1}}, 1) })
}

func TestMaxAbsDiff(t *testing.T) {
	maxDiff, index := MaxAbsDiff([]float32{1, 2, 3}, []float64{1, 2.5, 2.75})
	assert.Equal(t, float32(0.5), maxDiff)
	assert.Equal(t, 1, index)

	_, index = MaxAbsDiff([]float32{1}, nil)
	assert.Equal(t, -1, index)
}

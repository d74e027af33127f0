// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/x448/float16"
)

func TestToFloat32(t *testing.T) {
	assert.Equal(t, float32(0.5), toFloat32(float32(0.5)))
	assert.Equal(t, float32(-1.5), toFloat32(float16.Fromfloat32(-1.5)))
	assert.Equal(t, float32(-32768), toFloat32(int16(-32768)))
	assert.Equal(t, float32(1234), toFloat32(int16(1234)))
}

func TestFromFloat32(t *testing.T) {
	assert.Equal(t, float32(0.1), fromFloat32[float32](0.1))
	assert.Equal(t, float16.Fromfloat32(0.1), fromFloat32[float16.Float16](0.1))
	assert.Equal(t, float32(0.25), outputToFloat32(fromFloat32[float16.Float16](0.25)))
}

func TestTruncateAccumulator(t *testing.T) {
	for _, tc := range []struct {
		acc, rescale, want float32
	}{
		{10.3, 1, 10},
		{-10.3, 1, -10},
		// Ties round to even.
		{2.5, 1, 2},
		{3.5, 1, 4},
		// Multiples of 1/rescale.
		{5, 0.5, 4},
		{5.1, 0.5, 6},
		{0.3, 4, 0.25},
		{0, 3, 0},
	} {
		assert.Equal(t, tc.want, TruncateAccumulator(tc.acc, tc.rescale), "TruncateAccumulator(%g, %g)", tc.acc, tc.rescale)
	}

	acc := []float32{1.2, 2.6, -0.4}
	newTruncator(1).apply(acc)
	assert.Equal(t, []float32{1, 3, 0}, acc)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/xprop/pkg/core/dtypes"
	"github.com/x448/float16"
)

// toFloat32 converts a stored value to the accumulation format.
//
// Quantized Int16 values are converted as exact integers: the scale is only applied at output time.
func toFloat32[T dtypes.Storage](value T) float32 {
	switch v := any(value).(type) {
	case float32:
		return v
	case float16.Float16:
		return v.Float32()
	case int16:
		return float32(v)
	}
	exceptions.Panicf("xprop: unsupported storage type %T", value)
	return 0
}

// fromFloat32 converts a blended output value to the output storage format.
func fromFloat32[T float32 | float16.Float16](value float32) T {
	var t T
	switch any(t).(type) {
	case float16.Float16:
		return T(float16.Fromfloat32(value))
	}
	return T(value)
}

// truncationBias is 1.5*2^23: adding it to a float32 of magnitude below 2^22 moves the value into the
// exponent range where the unit in the last place is 1, so the addition rounds it (half to even) to an integer.
const truncationBias float32 = 12582912

// truncator emulates the fixed-point accumulator of the reference accelerator: each accumulator value is
// rounded to the nearest multiple of 1/rescale. The grid matches the accelerator's output only for alpha = 1.
type truncator struct {
	rescale, invRescale float32
}

func newTruncator(rescale float32) truncator {
	return truncator{rescale: rescale, invRescale: 1 / rescale}
}

// round one accumulator value onto the fixed-point grid.
//
// The explicit float32 conversions force rounding of every intermediate result, so the compiler
// cannot fuse or reassociate the operations.
func (t truncator) round(acc float32) float32 {
	scaled := float32(acc * t.rescale)
	biased := float32(scaled + truncationBias)
	rounded := float32(biased - truncationBias)
	return float32(rounded * t.invRescale)
}

// apply rounds all accumulators in place.
func (t truncator) apply(acc []float32) {
	for idx, value := range acc {
		acc[idx] = t.round(value)
	}
}

// TruncateAccumulator exposes the rounding applied by the hardware-accurate truncation mode to a single
// accumulator value, for emulators and tests.
func TruncateAccumulator(acc, rescale float32) float32 {
	return newTruncator(rescale).round(acc)
}

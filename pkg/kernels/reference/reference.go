// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package reference holds straightforward implementations of the xprop convolution, used to verify the kernel:
//
//   - Convolve is the direct nested summation, in float64.
//   - Emulate reproduces bit-exactly the quantized accumulator of the kernel, including the
//     hardware-accurate truncation.
package reference

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/xprop/pkg/kernels/launcher"
	"github.com/gomlx/xprop/pkg/kernels/xprop"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// ToFloat64 converts the flat values of the tensor, starting at its offset, to float64.
func ToFloat64(t xprop.Tensor, size int) []float64 {
	switch flat := t.Flat.(type) {
	case []float32:
		return convertFlat(flat[t.Offset:t.Offset+size], func(v float32) float64 { return float64(v) })
	case []float16.Float16:
		return convertFlat(flat[t.Offset:t.Offset+size], func(v float16.Float16) float64 { return float64(v.Float32()) })
	case []int16:
		return convertFlat(flat[t.Offset:t.Offset+size], func(v int16) float64 { return float64(v) })
	}
	exceptions.Panicf("reference.ToFloat64: unsupported buffer type %T", t.Flat)
	return nil
}

// storage of the kernel tensors, with float16.Float16 being an unsigned integer type.
type storage interface {
	constraints.Float | constraints.Integer
}

func convertFlat[T storage](flat []T, convert func(T) float64) []float64 {
	out := make([]float64, len(flat))
	for ii, v := range flat {
		out[ii] = convert(v)
	}
	return out
}

// receptiveField calls fn for every in-bounds (input index, filter index) pair summed into the output (k, m, p, q, n),
// in the order of the reduction axis (c, t, r, s).
func receptiveField(conv launcher.Conv, k, m, p, q, n int, fn func(position, inputIdx, filterIdx int)) {
	c := conv.Normalized()
	taps := c.TapsPerChannel()
	for ch := range c.C {
		for t := range c.T {
			z := m*c.StrideD - c.PadD + t*c.DilationD
			for r := range c.R {
				y := p*c.StrideH - c.PadH + r*c.DilationH
				for s := range c.S {
					x := q*c.StrideW - c.PadW + s*c.DilationW
					if z < 0 || z >= c.D || y < 0 || y >= c.H || x < 0 || x >= c.W {
						continue
					}
					tap := (t*c.R+r)*c.S + s
					inputIdx := (((ch*c.D+z)*c.H+y)*c.W+x)*c.N + n
					filterIdx := (ch*taps+tap)*c.K + k
					fn(ch*taps+tap, inputIdx, filterIdx)
				}
			}
		}
	}
}

// forEachOutput calls fn for every output coordinate, with its flat index in the [K, M, P, Q, N] layout.
func forEachOutput(conv launcher.Conv, fn func(idx, k, m, p, q, n int)) {
	c := conv.Normalized()
	mDim, pDim, qDim := c.OutputDims()
	idx := 0
	for k := range c.K {
		for m := range mDim {
			for p := range pDim {
				for q := range qDim {
					for n := range c.N {
						fn(idx, k, m, p, q, n)
						idx++
					}
				}
			}
		}
	}
}

// Convolve computes O[k,m,p,q,n] = alpha * Σ_{c,t,r,s} I[c,z,y,x,n] * F[c,t,r,s,k] + beta * prev[k,m,p,q,n],
// with out-of-range spatial indices taken as zero.
//
// The input, filter and prev are flat in the layouts of the kernel. prev can be nil if beta is 0.
func Convolve(conv launcher.Conv, input, filter, prev []float64, alpha, beta float64) []float64 {
	out := make([]float64, conv.OutputSize())
	forEachOutput(conv, func(idx, k, m, p, q, n int) {
		var sum float64
		receptiveField(conv, k, m, p, q, n, func(_, inputIdx, filterIdx int) {
			sum += input[inputIdx] * filter[filterIdx]
		})
		out[idx] = alpha * sum
		if beta != 0 {
			out[idx] += beta * prev[idx]
		}
	})
	return out
}

// Emulate reproduces bit-exactly the kernel in quantized mode: products and sums in float32, in the order of
// the reduction axis, with truncation (see xprop.TruncateAccumulator) after every truncationInterval groups of
// xprop.GroupSize positions, and the output blend alpha*(rescale*acc) + beta*prev.
//
// A truncationInterval of 0 disables the truncation. prev can be nil if beta is 0.
func Emulate(conv launcher.Conv, input, filter []int16, prev []float32,
	alpha, beta, rescale float32, truncationInterval int) []float32 {
	out := make([]float32, conv.OutputSize())
	numGroups := (conv.ReductionLength() + xprop.GroupSize - 1) / xprop.GroupSize
	forEachOutput(conv, func(idx, k, m, p, q, n int) {
		// Products indexed by reduction position, zero for taps in the padding.
		products := make([]float32, numGroups*xprop.GroupSize)
		receptiveField(conv, k, m, p, q, n, func(position, inputIdx, filterIdx int) {
			products[position] = float32(float32(filter[filterIdx]) * float32(input[inputIdx]))
		})
		var acc float32
		for group := range numGroups {
			for _, product := range products[group*xprop.GroupSize : (group+1)*xprop.GroupSize] {
				acc += product
			}
			if truncationInterval > 0 && (group+1)%truncationInterval == 0 {
				acc = xprop.TruncateAccumulator(acc, rescale)
			}
		}
		value := float32(alpha * float32(rescale*acc))
		if beta != 0 {
			value = float32(value + float32(beta*prev[idx]))
		}
		out[idx] = value
	})
	return out
}

// MaxAbsDiff returns the largest absolute difference between got and want, and its index.
// It returns -1 as index if the slices are empty or have different lengths.
func MaxAbsDiff(got []float32, want []float64) (maxDiff float32, index int) {
	index = -1
	if len(got) != len(want) {
		return math32.Inf(1), index
	}
	for ii, value := range got {
		diff := math32.Abs(value - float32(want[ii]))
		if diff > maxDiff || index == -1 {
			maxDiff, index = diff, ii
		}
	}
	return
}

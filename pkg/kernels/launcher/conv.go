// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package launcher prepares invocations of the xprop kernel: it holds the convolution geometry, builds the
// stencil table, sizes the grid and fills xprop.Params.
//
// These are the host-side collaborators of the kernel; unlike the kernel, the launcher validates its inputs.
package launcher

import (
	"fmt"

	"github.com/pkg/errors"
)

// Conv describes a forward convolution (cross-correlation) with 3 spatial axes.
//
// Layouts: input [C, D, H, W, N], filter [C, T, R, S, K], output [K, M, P, Q, N].
// 2D convolutions use D = T = 1, 1D convolutions also H = R = 1.
type Conv struct {
	// C input channels, K output channels and N batch size.
	C, K, N int

	// D, H, W input spatial dimensions.
	D, H, W int

	// T, R, S filter spatial dimensions.
	T, R, S int

	// Strides, paddings and filter dilations, per spatial axis. Strides and dilations of 0 are taken as 1.
	StrideD, StrideH, StrideW       int
	PadD, PadH, PadW                int
	DilationD, DilationH, DilationW int
}

// Normalized returns a copy with strides and dilations of 0 set to 1.
func (c Conv) Normalized() Conv {
	for _, v := range []*int{&c.StrideD, &c.StrideH, &c.StrideW, &c.DilationD, &c.DilationH, &c.DilationW} {
		if *v == 0 {
			*v = 1
		}
	}
	return c
}

// outputDim of one spatial axis.
func outputDim(in, filter, stride, pad, dilation int) int {
	dilated := (filter-1)*dilation + 1
	return (in+2*pad-dilated)/stride + 1
}

// OutputDims returns the output spatial dimensions (M, P, Q).
func (c Conv) OutputDims() (m, p, q int) {
	c = c.Normalized()
	return outputDim(c.D, c.T, c.StrideD, c.PadD, c.DilationD),
		outputDim(c.H, c.R, c.StrideH, c.PadH, c.DilationH),
		outputDim(c.W, c.S, c.StrideW, c.PadW, c.DilationW)
}

// TapsPerChannel is the number of filter taps per input channel, T*R*S.
func (c Conv) TapsPerChannel() int { return c.T * c.R * c.S }

// ReductionLength is the length of the reduction axis, C*T*R*S.
func (c Conv) ReductionLength() int { return c.C * c.TapsPerChannel() }

// InputShape returns the dimensions of the input, [C, D, H, W, N].
func (c Conv) InputShape() []int { return []int{c.C, c.D, c.H, c.W, c.N} }

// FilterShape returns the dimensions of the filter, [C, T, R, S, K].
func (c Conv) FilterShape() []int { return []int{c.C, c.T, c.R, c.S, c.K} }

// OutputShape returns the dimensions of the output, [K, M, P, Q, N].
func (c Conv) OutputShape() []int {
	m, p, q := c.OutputDims()
	return []int{c.K, m, p, q, c.N}
}

// InputSize returns the number of elements of the input.
func (c Conv) InputSize() int { return c.C * c.D * c.H * c.W * c.N }

// FilterSize returns the number of elements of the filter.
func (c Conv) FilterSize() int { return c.ReductionLength() * c.K }

// OutputSize returns the number of elements of the output.
func (c Conv) OutputSize() int {
	m, p, q := c.OutputDims()
	return c.K * m * p * q * c.N
}

// FLOPs returns the number of floating point operations (multiply and add counted separately) of the convolution.
func (c Conv) FLOPs() int64 {
	return 2 * int64(c.OutputSize()) * int64(c.ReductionLength())
}

// String implements fmt.Stringer.
func (c Conv) String() string {
	c = c.Normalized()
	m, p, q := c.OutputDims()
	return fmt.Sprintf("conv(input=[C:%d, D:%d, H:%d, W:%d, N:%d], filter=[T:%d, R:%d, S:%d, K:%d], "+
		"strides=(%d,%d,%d), pads=(%d,%d,%d), dilations=(%d,%d,%d)) -> [K:%d, M:%d, P:%d, Q:%d, N:%d]",
		c.C, c.D, c.H, c.W, c.N, c.T, c.R, c.S, c.K,
		c.StrideD, c.StrideH, c.StrideW, c.PadD, c.PadH, c.PadW, c.DilationD, c.DilationH, c.DilationW,
		c.K, m, p, q, c.N)
}

// Validate returns an error if the convolution is not well-formed.
func (c Conv) Validate() error {
	n := c.Normalized()
	for _, dim := range []struct {
		name  string
		value int
	}{
		{"C", n.C}, {"K", n.K}, {"N", n.N}, {"D", n.D}, {"H", n.H}, {"W", n.W}, {"T", n.T}, {"R", n.R}, {"S", n.S},
		{"StrideD", n.StrideD}, {"StrideH", n.StrideH}, {"StrideW", n.StrideW},
		{"DilationD", n.DilationD}, {"DilationH", n.DilationH}, {"DilationW", n.DilationW},
	} {
		if dim.value <= 0 {
			return errors.Errorf("invalid %s: dimension %s=%d must be > 0", c, dim.name, dim.value)
		}
	}
	if n.PadD < 0 || n.PadH < 0 || n.PadW < 0 {
		return errors.Errorf("invalid %s: negative paddings", c)
	}
	m, p, q := n.OutputDims()
	if m <= 0 || p <= 0 || q <= 0 {
		return errors.Errorf("invalid %s: filter larger than padded input", c)
	}
	return nil
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"github.com/gomlx/xprop/pkg/core/dtypes"
	"github.com/gomlx/xprop/pkg/kernels/xprop"
	"github.com/pkg/errors"
)

// InvocationBuilder is a helper to build the xprop.Params of one invocation.
// Create it with Convolve, set the desired parameters and when set, call Done.
type InvocationBuilder struct {
	conv Conv

	alpha, beta, rescale float32
	truncationInterval   int

	kOffset, kCount int
	spatialBlocks   int
}

// Convolve prepares an invocation of the kernel for the convolution.
//
// It returns an InvocationBuilder that can be further configured. The defaults are alpha=1, beta=0,
// rescale=1, no truncation, and all output channels.
func Convolve(conv Conv) *InvocationBuilder {
	return &InvocationBuilder{
		conv:    conv.Normalized(),
		alpha:   1,
		rescale: 1,
		kCount:  conv.K,
	}
}

// Alpha sets the coefficient of the convolution result in the affine blend O = alpha*acc + beta*O.
//
// It returns the modified InvocationBuilder, so calls can be cascaded.
func (b *InvocationBuilder) Alpha(alpha float32) *InvocationBuilder {
	b.alpha = alpha
	return b
}

// Beta sets the coefficient of the previous output in the affine blend. 0 overwrites the output, 1 accumulates.
//
// It returns the modified InvocationBuilder, so calls can be cascaded.
func (b *InvocationBuilder) Beta(beta float32) *InvocationBuilder {
	b.beta = beta
	return b
}

// Rescale sets the factor converting accumulators to output units, used only with quantized (Int16) operands.
//
// It returns the modified InvocationBuilder, so calls can be cascaded.
func (b *InvocationBuilder) Rescale(rescale float32) *InvocationBuilder {
	b.rescale = rescale
	return b
}

// TruncateEvery enables the hardware-accurate truncation every interval reduction groups (of xprop.GroupSize
// positions). It is only used with quantized (Int16) operands; 0 disables it.
//
// It returns the modified InvocationBuilder, so calls can be cascaded.
func (b *InvocationBuilder) TruncateEvery(interval int) *InvocationBuilder {
	b.truncationInterval = interval
	return b
}

// OutputChannels restricts the invocation to the output channels [offset, offset+count).
// count must be a multiple of xprop.TileK, or reach the last output channel.
//
// It returns the modified InvocationBuilder, so calls can be cascaded.
func (b *InvocationBuilder) OutputChannels(offset, count int) *InvocationBuilder {
	b.kOffset, b.kCount = offset, count
	return b
}

// SpatialBlocks overrides the number of spatial blocks of the grid. Blocks beyond the output
// extents are valid, and write nothing.
//
// It returns the modified InvocationBuilder, so calls can be cascaded.
func (b *InvocationBuilder) SpatialBlocks(spatialBlocks int) *InvocationBuilder {
	b.spatialBlocks = spatialBlocks
	return b
}

// Done validates the configuration and the buffers, and returns the invocation parameters.
//
// The input and filter must have the same storage format, which selects the kernel mode. The output
// must be Float32 or Float16. The flat buffers must hold at least Offset plus the tensor size elements.
func (b *InvocationBuilder) Done(input, filter, output xprop.Tensor) (*xprop.Params, error) {
	conv := b.conv
	if err := conv.Validate(); err != nil {
		return nil, err
	}
	format := input.DType()
	if format == dtypes.InvalidDType {
		return nil, errors.Errorf("unsupported input buffer type %T", input.Flat)
	}
	if filter.DType() != format {
		return nil, errors.Errorf("filter (%s) must have the same format as the input (%s)", filter.DType(), format)
	}
	if outFormat := output.DType(); outFormat != dtypes.Float32 && outFormat != dtypes.Float16 {
		return nil, errors.Errorf("output must be Float32 or Float16, got %s", outFormat)
	}
	for _, tensor := range []struct {
		name string
		t    xprop.Tensor
		size int
	}{{"input", input, conv.InputSize()}, {"filter", filter, conv.FilterSize()}, {"output", output, conv.OutputSize()}} {
		if tensor.t.Offset < 0 || tensor.t.Len() < tensor.t.Offset+tensor.size {
			return nil, errors.Errorf("%s buffer has %d elements, it needs offset %d + %d elements for %s",
				tensor.name, tensor.t.Len(), tensor.t.Offset, tensor.size, conv)
		}
	}
	if b.kOffset < 0 || b.kCount <= 0 || b.kOffset+b.kCount > conv.K {
		return nil, errors.Errorf("invalid output channels range [%d, %d) for K=%d", b.kOffset, b.kOffset+b.kCount, conv.K)
	}
	if b.kCount%xprop.TileK != 0 && b.kOffset+b.kCount != conv.K {
		return nil, errors.Errorf("output channels count %d must be a multiple of %d or reach K=%d",
			b.kCount, xprop.TileK, conv.K)
	}
	truncationInterval := b.truncationInterval
	if format != dtypes.Int16 {
		truncationInterval = 0
	} else if truncationInterval > 0 && b.rescale == 0 {
		return nil, errors.New("truncation requires a non-zero rescale factor")
	}
	flags, err := xprop.MakeFlags(format, truncationInterval)
	if err != nil {
		return nil, err
	}

	m, p, q := conv.OutputDims()
	grid := Grid(conv, b.kCount)
	if b.spatialBlocks > 0 {
		grid.SpatialBlocks = b.spatialBlocks
	}
	return &xprop.Params{
		Input:               input,
		Filter:              filter,
		Output:              output,
		InputChannelStride:  conv.D * conv.H * conv.W * conv.N,
		FilterChannelStride: conv.TapsPerChannel() * conv.K,
		OutputChannelStride: m * p * q * conv.N,
		D:                   conv.D,
		H:                   conv.H,
		W:                   conv.W,
		N:                   conv.N,
		M:                   m,
		P:                   p,
		Q:                   q,
		K:                   conv.K,
		KOffset:             b.kOffset,
		StrideD:             conv.StrideD,
		StrideH:             conv.StrideH,
		StrideW:             conv.StrideW,
		PadD:                conv.PadD,
		PadH:                conv.PadH,
		PadW:                conv.PadW,
		Alpha:               b.alpha,
		Beta:                b.beta,
		Rescale:             b.rescale,
		Flags:               flags,
		LUTSize:             conv.ReductionLength(),
		GroupRunLength:      conv.TapsPerChannel(),
		Stencil:             BuildStencil(conv),
		Grid:                grid,
	}, nil
}

// MakeTensor allocates a zero-initialized tensor of the given format and size.
func MakeTensor(dtype dtypes.DType, size int) xprop.Tensor {
	return xprop.Tensor{Flat: dtype.MakeFlat(size)}
}

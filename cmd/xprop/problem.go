// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/gomlx/xprop/pkg/core/dtypes"
	"github.com/gomlx/xprop/pkg/kernels/launcher"
	"github.com/gomlx/xprop/pkg/kernels/xprop"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// problemFlags are the flags shared by all commands, describing the convolution and the invocation.
type problemFlags struct {
	c, k, n                  int
	dhw, trs                 string
	strides, pads, dilations string
	dtype, outputDType       string
	alpha, beta, rescale     float64
	truncate                 int
	kOffset, kCount          int
	config                   string
	seed                     uint64
}

func (f *problemFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&f.c, "c", 3, "Number of input channels.")
	fs.IntVar(&f.k, "k", 64, "Number of output channels.")
	fs.IntVar(&f.n, "n", 128, "Batch size.")
	fs.StringVar(&f.dhw, "dhw", "1,8,8", "Input spatial dimensions: depth,height,width. "+
		"Fewer values are taken as the trailing axes, e.g. \"8,8\" is 1,8,8.")
	fs.StringVar(&f.trs, "trs", "1,3,3", "Filter spatial dimensions: depth,height,width.")
	fs.StringVar(&f.strides, "strides", "1", "Convolution strides per spatial axis, a single value applies to all axes.")
	fs.StringVar(&f.pads, "pads", "0,1,1", "Paddings per spatial axis, a single value applies to all axes.")
	fs.StringVar(&f.dilations, "dilations", "1", "Filter dilations per spatial axis, a single value applies to all axes.")
	fs.StringVar(&f.dtype, "dtype", "float32", "Storage format of input and filter: float32, float16 (or half) "+
		"or int16 (or quantized).")
	fs.StringVar(&f.outputDType, "output_dtype", "float32", "Storage format of the output: float32 or float16.")
	fs.Float64Var(&f.alpha, "alpha", 1, "Coefficient of the convolution in the blend O = alpha*conv + beta*O.")
	fs.Float64Var(&f.beta, "beta", 0, "Coefficient of the previous (random) output in the blend.")
	fs.Float64Var(&f.rescale, "rescale", 1, "Rescale of the accumulators, for int16 operands only.")
	fs.IntVar(&f.truncate, "truncate", 0, "Truncation interval, in groups of 8 reduction positions, for int16 "+
		"operands only. 0 disables it.")
	fs.IntVar(&f.kOffset, "k_offset", 0, "First output channel computed.")
	fs.IntVar(&f.kCount, "k_count", 0, "Number of output channels computed, 0 for all from -k_offset.")
	fs.StringVar(&f.config, "config", "", "Kernel configuration, in the format of $"+xprop.ConfigEnv+
		" (e.g. \"parallelism=4,pipeline=sequential\"). If empty, $"+xprop.ConfigEnv+" is used.")
	fs.Uint64Var(&f.seed, "seed", 42, "Seed of the random tensors.")
}

// parseAxes parses up to 3 comma-separated values, right-aligned to the (depth, height, width) axes.
// A single value is broadcast to all axes if broadcast is set, otherwise missing leading axes are filled with fill.
func parseAxes(name, value string, broadcast bool, fill int) (axes [3]int, err error) {
	parts := strings.Split(value, ",")
	if len(parts) > 3 || value == "" {
		return axes, errors.Errorf("invalid -%s=%q: expected up to 3 comma-separated values", name, value)
	}
	values := make([]int, len(parts))
	for ii, part := range parts {
		values[ii], err = strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return axes, errors.Wrapf(err, "invalid -%s=%q", name, value)
		}
	}
	if broadcast && len(values) == 1 {
		return [3]int{values[0], values[0], values[0]}, nil
	}
	axes = [3]int{fill, fill, fill}
	copy(axes[3-len(values):], values)
	return axes, nil
}

func (f *problemFlags) conv() (launcher.Conv, error) {
	var conv launcher.Conv
	dhw, err := parseAxes("dhw", f.dhw, false, 1)
	if err != nil {
		return conv, err
	}
	trs, err := parseAxes("trs", f.trs, false, 1)
	if err != nil {
		return conv, err
	}
	strides, err := parseAxes("strides", f.strides, true, 1)
	if err != nil {
		return conv, err
	}
	pads, err := parseAxes("pads", f.pads, true, 0)
	if err != nil {
		return conv, err
	}
	dilations, err := parseAxes("dilations", f.dilations, true, 1)
	if err != nil {
		return conv, err
	}
	conv = launcher.Conv{
		C: f.c, K: f.k, N: f.n,
		D: dhw[0], H: dhw[1], W: dhw[2],
		T: trs[0], R: trs[1], S: trs[2],
		StrideD: strides[0], StrideH: strides[1], StrideW: strides[2],
		PadD: pads[0], PadH: pads[1], PadW: pads[2],
		DilationD: dilations[0], DilationH: dilations[1], DilationW: dilations[2],
	}
	return conv, conv.Validate()
}

func (f *problemFlags) kernel() (*xprop.Kernel, error) {
	if f.config == "" {
		return xprop.New(xprop.DefaultConfig()), nil
	}
	config, err := xprop.ParseConfig(f.config)
	if err != nil {
		return nil, err
	}
	return xprop.New(config), nil
}

// problem is one randomly generated invocation of the kernel.
type problem struct {
	conv    launcher.Conv
	params  *xprop.Params
	input   xprop.Tensor
	filter  xprop.Tensor
	output  xprop.Tensor
	initial xprop.Tensor // Copy of the output before the invocation, for beta != 0.
}

func (f *problemFlags) problem() (*problem, error) {
	conv, err := f.conv()
	if err != nil {
		return nil, err
	}
	format, err := dtypes.FromName(f.dtype)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid -dtype")
	}
	outputFormat, err := dtypes.FromName(f.outputDType)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid -output_dtype")
	}
	if !outputFormat.IsFloat() {
		return nil, errors.Errorf("invalid -output_dtype=%s: the output must be float32 or float16", outputFormat)
	}

	rng := rand.New(rand.NewPCG(f.seed, 0))
	pb := &problem{
		conv:   conv,
		input:  randomTensor(rng, format, conv.InputSize()),
		filter: randomTensor(rng, format, conv.FilterSize()),
	}
	if f.beta != 0 {
		pb.output = randomTensor(rng, outputFormat, conv.OutputSize())
	} else {
		pb.output = launcher.MakeTensor(outputFormat, conv.OutputSize())
	}
	pb.initial = cloneTensor(pb.output)

	kCount := f.kCount
	if kCount == 0 {
		kCount = conv.K - f.kOffset
	}
	pb.params, err = launcher.Convolve(conv).
		Alpha(float32(f.alpha)).
		Beta(float32(f.beta)).
		Rescale(float32(f.rescale)).
		TruncateEvery(f.truncate).
		OutputChannels(f.kOffset, kCount).
		Done(pb.input, pb.filter, pb.output)
	if err != nil {
		return nil, err
	}
	return pb, nil
}

// reset restores the output to its value before the invocation.
func (pb *problem) reset() {
	switch flat := pb.output.Flat.(type) {
	case []float32:
		copy(flat, pb.initial.Flat.([]float32))
	case []float16.Float16:
		copy(flat, pb.initial.Flat.([]float16.Float16))
	}
}

// randomTensor returns a tensor with values uniformly distributed in [-1, 1) for floats, or [-20, 20] for int16.
func randomTensor(rng *rand.Rand, dtype dtypes.DType, size int) xprop.Tensor {
	t := launcher.MakeTensor(dtype, size)
	switch flat := t.Flat.(type) {
	case []float32:
		for ii := range flat {
			flat[ii] = 2*rng.Float32() - 1
		}
	case []float16.Float16:
		for ii := range flat {
			flat[ii] = float16.Fromfloat32(2*rng.Float32() - 1)
		}
	case []int16:
		for ii := range flat {
			flat[ii] = int16(rng.IntN(41) - 20)
		}
	}
	return t
}

func cloneTensor(t xprop.Tensor) xprop.Tensor {
	switch flat := t.Flat.(type) {
	case []float32:
		return xprop.Tensor{Flat: append([]float32(nil), flat...)}
	case []float16.Float16:
		return xprop.Tensor{Flat: append([]float16.Float16(nil), flat...)}
	case []int16:
		return xprop.Tensor{Flat: append([]int16(nil), flat...)}
	}
	return t
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/xprop/pkg/core/dtypes"
	"github.com/gomlx/xprop/pkg/kernels/reference"
	"github.com/gomlx/xprop/pkg/kernels/xprop"
	"github.com/google/subcommands"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// verifyCommand checks the kernel output against the reference implementations.
type verifyCommand struct {
	problemFlags
	tolerance float64
}

var _ subcommands.Command = (*verifyCommand)(nil)

func (*verifyCommand) Name() string { return "verify" }

func (*verifyCommand) Synopsis() string { return "Check the kernel against the reference convolution." }

func (*verifyCommand) Usage() string {
	return `verify [flags]:
  Runs the kernel on random tensors and compares the output against the direct (float64) convolution.
  With int16 operands and float32 output it also checks the bit-exact match with the quantized emulator.
`
}

func (c *verifyCommand) SetFlags(f *flag.FlagSet) {
	c.problemFlags.register(f)
	f.Float64Var(&c.tolerance, "tolerance", 1e-3, "Maximum absolute difference to the reference, "+
		"relative to the largest reference value if that is larger than 1. Use ~1e-2 for float16 outputs.")
}

func (c *verifyCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	err := exceptions.TryCatch[error](func() { must.M(c.execute(ctx)) })
	if err != nil {
		klog.Errorf("verify failed: %+v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *verifyCommand) execute(ctx context.Context) error {
	pb := must.M1(c.problem())
	kernel := must.M1(c.kernel())
	if err := kernel.Run(ctx, pb.params); err != nil {
		return err
	}
	params, conv := pb.params, pb.conv
	size := conv.OutputSize()
	initial := reference.ToFloat64(pb.initial, size)
	alpha := float64(params.Alpha)
	if params.Format().IsQuantized() {
		alpha *= float64(params.Rescale)
	}
	want := reference.Convolve(conv, reference.ToFloat64(pb.input, conv.InputSize()),
		reference.ToFloat64(pb.filter, conv.FilterSize()), initial, alpha, float64(params.Beta))
	got := toFloat32(reference.ToFloat64(pb.output, size))

	// Channels outside of the invocation are expected to be untouched.
	kEnd := min(params.K, params.KOffset+params.Grid.KBlocks*xprop.TileK)
	for ii := range want {
		if k := ii / params.OutputChannelStride; k < params.KOffset || k >= kEnd {
			want[ii] = initial[ii]
		}
	}

	maxDiff, index := reference.MaxAbsDiff(got, want)
	var maxWant float64
	for _, value := range want {
		maxWant = max(maxWant, math.Abs(value))
	}
	tolerance := c.tolerance * max(1, maxWant)

	table := pb.summaryTable()
	table.Row("config", kernel.Config().String())
	table.Row("max |reference|", fmt.Sprintf("%.6g", maxWant))
	table.Row("max difference", fmt.Sprintf("%.6g at %s", maxDiff, pb.describeOutput(index)))
	table.Row("tolerance", fmt.Sprintf("%.6g", tolerance))

	var exactErr error
	if params.Format().IsQuantized() && params.Output.DType() == dtypes.Float32 && params.KOffset == 0 &&
		kEnd == params.K {
		emulated := reference.Emulate(conv, pb.input.Flat.([]int16), pb.filter.Flat.([]int16),
			pb.initial.Flat.([]float32), params.Alpha, params.Beta, params.Rescale, params.TruncationInterval())
		mismatches := 0
		for ii, value := range emulated {
			if math32.Float32bits(value) != math32.Float32bits(got[ii]) {
				mismatches++
			}
		}
		table.Row("emulator mismatches", fmt.Sprintf("%s of %s", humanize.Comma(int64(mismatches)),
			humanize.Comma(int64(len(emulated)))))
		if mismatches > 0 {
			exactErr = errors.Errorf("%d outputs differ from the bit-exact quantized emulator", mismatches)
		}
	}
	fmt.Println(table.Render())

	// Truncation moves the accumulators off the exact convolution, only the emulator check applies.
	if !params.Truncates() && float64(maxDiff) > tolerance {
		return errors.Errorf("max difference %g at %s is larger than the tolerance %g",
			maxDiff, pb.describeOutput(index), tolerance)
	}
	if exactErr != nil {
		return exactErr
	}
	fmt.Println("OK")
	return nil
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for ii, v := range values {
		out[ii] = float32(v)
	}
	return out
}

// describeOutput returns the coordinates of the output at the flat index.
func (pb *problem) describeOutput(index int) string {
	if index < 0 {
		return "-"
	}
	shape := pb.conv.OutputShape()
	coords := make([]int, len(shape))
	for axis := len(shape) - 1; axis >= 0; axis-- {
		coords[axis] = index % shape[axis]
		index /= shape[axis]
	}
	return fmt.Sprintf("[k=%d, m=%d, p=%d, q=%d, n=%d]", coords[0], coords[1], coords[2], coords[3], coords[4])
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/xprop/pkg/core/dtypes"
	"github.com/gomlx/xprop/pkg/kernels/launcher"
)

func TestParseAxes(t *testing.T) {
	axes, err := parseAxes("dhw", "8,8", false, 1)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 8, 8}, axes)

	axes, err = parseAxes("strides", "2", true, 1)
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 2}, axes)

	axes, err = parseAxes("pads", "0, 1, 2", true, 0)
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 1, 2}, axes)

	for _, bad := range []string{"", "1,2,3,4", "1,x"} {
		_, err = parseAxes("dhw", bad, false, 1)
		assert.Error(t, err, "value %q", bad)
	}
}

func TestProblem(t *testing.T) {
	flags := problemFlags{
		c: 2, k: 64, n: 128, dhw: "4,4", trs: "3,3", strides: "1", pads: "0,1,1", dilations: "1",
		dtype: "quantized", outputDType: "half", alpha: 1, beta: 0.5, rescale: 0.5, truncate: 2, seed: 1,
	}
	pb, err := flags.problem()
	require.NoError(t, err)
	assert.Equal(t, launcher.Conv{C: 2, K: 64, N: 128, D: 1, H: 4, W: 4, T: 1, R: 3, S: 3,
		StrideD: 1, StrideH: 1, StrideW: 1, PadH: 1, PadW: 1, DilationD: 1, DilationH: 1, DilationW: 1}, pb.conv)
	assert.Equal(t, dtypes.Int16, pb.params.Format())
	assert.Equal(t, dtypes.Float16, pb.output.DType())
	assert.True(t, pb.params.Truncates())
	assert.Equal(t, "[k=1, m=0, p=0, q=0, n=3]", pb.describeOutput(1*16*128+3))

	flags.outputDType = "int16"
	_, err = flags.problem()
	assert.Error(t, err)
}

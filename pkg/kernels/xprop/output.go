// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

import (
	"github.com/gomlx/exceptions"
	"github.com/x448/float16"
)

// forEachOutput calls fn for every valid output value of the block, with the fragment, the position
// (i, j) within the fragment, and the output address (relative to the output base offset):
//
//	address = (k*M*P*Q + (m*P*Q + p*Q + q))*N + n   ==   k*OutputChannelStride + outSpatial*N + n
//
// Lanes of over-allocated tiles (spatially, in output channels or in batch) are skipped.
func forEachOutput(params *Params, geom *blockGeometry, fn func(fragment, i, j, address int)) {
	if !geom.spatialValid {
		return
	}
	spatialAddr := geom.outSpatial * params.N
	for fragment := range NumFragments {
		kFrag, nFrag := outputFragment(fragment)
		for i := range FragmentDim {
			k := kFrag + i
			if !geom.channelValid(params, k) {
				continue
			}
			channelAddr := (geom.kBase+k)*params.OutputChannelStride + spatialAddr
			for j := range FragmentDim {
				n := nFrag + j
				if !geom.batchValid(params, n) {
					continue
				}
				fn(fragment, i, j, channelAddr+geom.nBase+n)
			}
		}
	}
}

// outputAssembler blends the accumulators of a block into the output tensor.
type outputAssembler struct {
	params *Params
	geom   *blockGeometry

	// scale is applied to the accumulators before the blend: Rescale in quantized mode, 1 otherwise.
	scale float32
}

func newOutputAssembler(params *Params, geom *blockGeometry) *outputAssembler {
	a := &outputAssembler{params: params, geom: geom, scale: 1}
	if params.Format().IsQuantized() {
		a.scale = params.Rescale
	}
	return a
}

// store blends the accumulators into the output: O = alpha*scale*acc + beta*O.
// With beta == 0 the previous output is not read.
func (a *outputAssembler) store(e *reductionEngine) {
	switch flat := a.params.Output.Flat.(type) {
	case []float32:
		storeOutput(a, e, flat)
	case []float16.Float16:
		storeOutput(a, e, flat)
	default:
		exceptions.Panicf("xprop: unsupported output type %T", a.params.Output.Flat)
	}
}

func storeOutput[T float32 | float16.Float16](a *outputAssembler, e *reductionEngine, flat []T) {
	params := a.params
	alpha, beta, scale := params.Alpha, params.Beta, a.scale
	base := params.Output.Offset
	forEachOutput(params, a.geom, func(fragment, i, j, address int) {
		value := float32(alpha * float32(scale*e.fragment(fragment)[i*FragmentDim+j]))
		if beta != 0 {
			value = float32(value + float32(beta*outputToFloat32(flat[base+address])))
		}
		flat[base+address] = fromFloat32[T](value)
	})
}

func outputToFloat32[T float32 | float16.Float16](value T) float32 {
	if h, ok := any(value).(float16.Float16); ok {
		return h.Float32()
	}
	return float32(value)
}

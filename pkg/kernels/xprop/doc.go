// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xprop implements a fixed-geometry forward cross-correlation ("xprop") convolution kernel.
//
// The kernel computes output activations O[K,M,P,Q,N] from input activations I[C,D,H,W,N] and filters
// F[C,T,R,S,K] as a blocked matrix multiplication: the grid is split in independent blocks, each owning a
// disjoint 64x128 (output channels x batch) tile of the output at one output spatial position.
//
// Each block goes through the following stages:
//
//   - Geometry resolution: the block coordinate is decoded into tensor coordinates, and per-lane
//     validity predicates are computed for over-allocated tiles.
//   - Stencil table consumption: the precomputed receptive-field table (one entry per reduction position)
//     is copied into the block scratch arena, and consumed in groups of 8 positions.
//   - Double-buffered staging: one 64x8 filter tile and one 128x8 input tile are loaded per iteration,
//     converted to float32 and written into the half of the staging buffer not being read.
//   - Pipelined reduction: 8x8 outer-products are accumulated into the 128 accumulator fragments of the tile,
//     while the next tile is staged concurrently.
//   - Output assembly: accumulators are blended into the output with alpha/beta, masking invalid lanes.
//
// Lanes are not goroutines: each of the 256 lanes of a block is one iteration of a predicated loop. The
// stager and the reduction engine of a block are two goroutines meeting at one barrier per iteration
// (see Config.Pipeline).
//
// The kernel doesn't validate the numerical consistency of its parameters: building the stencil table,
// sizing the grid and filling Params is the job of the launcher (see package launcher).
package xprop

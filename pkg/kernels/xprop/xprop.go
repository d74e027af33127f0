// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

import (
	"context"
	"sync"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/xprop/internal/arena"
	"github.com/gomlx/xprop/internal/workerspool"
	"github.com/gomlx/xprop/pkg/core/dtypes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// blockScratchSize is the number of float32 values of a block arena: the two double-buffered staging
// tiles and the accumulators.
const blockScratchSize = 2*filterHalf + 2*inputHalf + NumFragments*fragmentSize

// Kernel executes xprop invocations with a fixed configuration.
// It is safe for concurrent use.
type Kernel struct {
	config Config
	pool   *workerspool.Pool
}

// New creates a Kernel with the given configuration.
func New(config Config) *Kernel {
	if config.Remap == nil {
		config.Remap = XORRemap{}
	}
	pool := workerspool.New()
	pool.SetMaxParallelism(config.MaxParallelism)
	return &Kernel{config: config, pool: pool}
}

// Config returns the configuration of the kernel.
func (k *Kernel) Config() Config {
	return k.config
}

var (
	defaultKernel     *Kernel
	defaultKernelOnce sync.Once
)

// Run executes the invocation with a Kernel configured with DefaultConfig.
func Run(ctx context.Context, params *Params) error {
	defaultKernelOnce.Do(func() { defaultKernel = New(DefaultConfig()) })
	return defaultKernel.Run(ctx, params)
}

// Run executes all the blocks of the invocation's grid, and returns when they are all completed.
//
// The numerical consistency of params is not checked. Only records that can't be executed at all
// (mismatched buffer types, missing stencil entries) return an error before any block starts; a block
// addressing outside its buffers returns the runtime error of the first such block.
//
// The context is checked between blocks only: a block always runs to completion once started.
func (k *Kernel) Run(ctx context.Context, params *Params) error {
	if err := params.checkStructure(); err != nil {
		return err
	}
	inv := newInvocation(params, k.config)
	start := time.Now()
	numBlocks := params.Grid.NumBlocks()
	err := k.pool.Run(ctx, numBlocks, inv.runBlock)
	if klog.V(1).Enabled() {
		klog.Infof("xprop %s: %d blocks (grid %s), %s operands, lutSize=%d, config %s: %s",
			inv.id, numBlocks, params.Grid, params.Format(), params.LUTSize, k.config, time.Since(start))
	}
	if err != nil {
		return errors.Wrapf(err, "xprop %s interrupted", inv.id)
	}
	if blockErr := inv.firstError(); blockErr != nil {
		return blockErr
	}
	return nil
}

// invocation holds the state shared by the blocks of one Run.
type invocation struct {
	id     uuid.UUID
	params *Params
	config Config

	scratch *arena.Pool[float32]
	tables  *arena.Pool[StencilEntry]

	mu  sync.Mutex
	err error
}

func newInvocation(params *Params, config Config) *invocation {
	return &invocation{
		id:      uuid.New(),
		params:  params,
		config:  config,
		scratch: arena.NewPool[float32](blockScratchSize),
		tables:  arena.NewPool[StencilEntry](params.LUTSize),
	}
}

func (inv *invocation) firstError() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.err
}

// runBlock executes one block, converting a panic (from a mis-invoked kernel) into the invocation error.
func (inv *invocation) runBlock(blockIdx int) {
	coord := inv.params.Grid.Coord(blockIdx)
	err := exceptions.TryCatch[error](func() { inv.executeBlock(coord) })
	if err == nil {
		return
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.err == nil {
		inv.err = errors.Wrapf(err, "xprop %s: block %+v failed", inv.id, coord)
	}
}

// executeBlock runs the full pipeline of one block: all its entities live in the block arenas and are
// discarded when it returns.
func (inv *invocation) executeBlock(coord BlockCoord) {
	params := inv.params
	scratch := inv.scratch.Get()
	defer inv.scratch.Put(scratch)
	tables := inv.tables.Get()
	defer inv.tables.Put(tables)

	geom := resolveGeometry(params, coord)
	if klog.V(2).Enabled() {
		klog.Infof("xprop %s: block %+v -> k=%d, n=%d, (m,p,q)=(%d,%d,%d), valid=%v",
			inv.id, coord, geom.kBase, geom.nBase, geom.m, geom.p, geom.q, geom.spatialValid)
	}
	buffers := &staging{
		filter: scratch.MustAlloc(2 * filterHalf),
		input:  scratch.MustAlloc(2 * inputHalf),
	}
	stencil := newStencilConsumer(params, &geom, tables.MustAlloc(params.LUTSize))
	engine := newReductionEngine(params, buffers, inv.config.Remap, scratch.MustAlloc(NumFragments*fragmentSize))
	engine.reduce(newStager(params, &geom, stencil, inv.config.Remap, buffers), inv.config.Pipeline)
	newOutputAssembler(params, &geom).store(engine)
}

// newStager returns the stager for the operand format of the invocation.
func newStager(params *Params, geom *blockGeometry, stencil *stencilConsumer, remap Remap, buffers *staging) stager {
	switch params.Format() {
	case dtypes.Float32:
		return newOperandStager[float32](params, geom, stencil, remap, buffers)
	case dtypes.Float16:
		return newOperandStager[float16.Float16](params, geom, stencil, remap, buffers)
	case dtypes.Int16:
		return newOperandStager[int16](params, geom, stencil, remap, buffers)
	}
	exceptions.Panicf("xprop: unsupported operand format %s", params.Format())
	return nil
}

// BlockFootprint calls fn with every output address (relative to Output.Offset) written by the block.
//
// It follows the same geometry and predicates used by the kernel to store the block results.
func (p *Params) BlockFootprint(blockIdx int, fn func(address int)) {
	geom := resolveGeometry(p, p.Grid.Coord(blockIdx))
	forEachOutput(p, &geom, func(_, _, _, address int) { fn(address) })
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs the independent blocks of a kernel invocation over a bounded set of goroutines.
package workerspool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool of workers. The zero value is a Pool with parallelism disabled.
type Pool struct {
	// maxParallelism is the number of goroutines used to run tasks.
	// If 0 tasks run inline, if < 0 every task gets its own goroutine.
	maxParallelism int

	// running is the number of tasks being executed at this moment, across all Run calls.
	running atomic.Int32
}

// New returns a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	return &Pool{maxParallelism: runtime.NumCPU()}
}

// IsEnabled returns whether parallelism is enabled (maxParallelism is != 0)
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism != 0
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0)
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism returns the number of goroutines used by Run.
// If set to 0 parallelism is disabled.
// If set to -1 parallelism is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism.
//
// You should only change the parallelism before any Run is called. If changed during the execution
// the behavior is undefined.
func (w *Pool) SetMaxParallelism(maxParallelism int) {
	w.maxParallelism = maxParallelism
}

// Running returns the number of tasks currently executing.
func (w *Pool) Running() int {
	return int(w.running.Load())
}

// numWorkers returns how many goroutines Run uses for numTasks tasks.
func (w *Pool) numWorkers(numTasks int) int {
	switch {
	case w.maxParallelism == 0:
		return 0
	case w.maxParallelism < 0:
		return numTasks
	default:
		return min(w.maxParallelism, numTasks)
	}
}

// Run executes task(taskIdx) for every taskIdx in [0, numTasks) and returns when all started tasks are finished.
//
// Tasks are picked up in increasing order, but may run concurrently and complete in any order.
// The context is only checked before a task is started: a task already running always runs to completion.
// If the context is cancelled the remaining tasks are skipped and ctx.Err() is returned.
//
// If parallelism is disabled, the tasks are executed inline, in order.
func (w *Pool) Run(ctx context.Context, numTasks int, task func(taskIdx int)) error {
	if numTasks <= 0 {
		return ctx.Err()
	}
	workers := w.numWorkers(numTasks)
	if workers == 0 {
		for taskIdx := range numTasks {
			if err := ctx.Err(); err != nil {
				return err
			}
			w.runTask(task, taskIdx)
		}
		return nil
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				taskIdx := int(next.Add(1) - 1)
				if taskIdx >= numTasks {
					return
				}
				w.runTask(task, taskIdx)
			}
		}()
	}
	wg.Wait()
	if int(next.Load()) < numTasks {
		return ctx.Err()
	}
	return nil
}

func (w *Pool) runTask(task func(taskIdx int), taskIdx int) {
	w.running.Add(1)
	defer w.running.Add(-1)
	task(taskIdx)
}

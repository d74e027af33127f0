// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"slices"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/google/subcommands"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// benchCommand times repeated invocations of the kernel.
type benchCommand struct {
	problemFlags
	iterations, warmup int
	noProgress         bool
}

var _ subcommands.Command = (*benchCommand)(nil)

func (*benchCommand) Name() string { return "bench" }

func (*benchCommand) Synopsis() string { return "Benchmark repeated invocations of the kernel." }

func (*benchCommand) Usage() string {
	return `bench [flags]:
  Times repeated invocations of the kernel on the same random tensors, and reports the FLOP rates.
`
}

func (c *benchCommand) SetFlags(f *flag.FlagSet) {
	c.problemFlags.register(f)
	f.IntVar(&c.iterations, "iterations", 10, "Number of timed invocations.")
	f.IntVar(&c.warmup, "warmup", 1, "Number of invocations before timing.")
	f.BoolVar(&c.noProgress, "no_progress", false, "Disable the progress bar.")
}

func (c *benchCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	err := exceptions.TryCatch[error](func() { must.M(c.execute(ctx)) })
	if err != nil {
		klog.Errorf("bench failed: %+v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *benchCommand) execute(ctx context.Context) error {
	if c.iterations <= 0 {
		return errors.Errorf("-iterations=%d must be > 0", c.iterations)
	}
	pb := must.M1(c.problem())
	kernel := must.M1(c.kernel())
	for range c.warmup {
		if err := kernel.Run(ctx, pb.params); err != nil {
			return err
		}
		pb.reset()
	}

	var bar *progressbar.ProgressBar
	if !c.noProgress {
		bar = progressbar.NewOptions(c.iterations,
			progressbar.OptionSetDescription("Benchmarking"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("runs"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish())
	}
	durations := make([]time.Duration, 0, c.iterations)
	for range c.iterations {
		start := time.Now()
		if err := kernel.Run(ctx, pb.params); err != nil {
			return err
		}
		durations = append(durations, time.Since(start))
		pb.reset()
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	var total time.Duration
	for _, d := range durations {
		total += d
	}
	slices.Sort(durations)
	mean := total / time.Duration(len(durations))
	median := durations[len(durations)/2]

	table := pb.summaryTable()
	table.Row("config", kernel.Config().String())
	table.Row("iterations", fmt.Sprintf("%d (+%d warmup)", c.iterations, c.warmup))
	table.Row("min", fmt.Sprintf("%s (%s)", durations[0], pb.flopRate(durations[0])))
	table.Row("median", fmt.Sprintf("%s (%s)", median, pb.flopRate(median)))
	table.Row("mean", fmt.Sprintf("%s (%s)", mean, pb.flopRate(mean)))
	table.Row("max", fmt.Sprintf("%s (%s)", durations[len(durations)-1], pb.flopRate(durations[len(durations)-1])))
	fmt.Println(table.Render())
	return nil
}

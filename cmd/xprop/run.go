// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/google/subcommands"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

// runCommand executes the kernel once and reports the problem and timing.
type runCommand struct {
	problemFlags
	saveFile string
}

var _ subcommands.Command = (*runCommand)(nil)

func (*runCommand) Name() string { return "run" }

func (*runCommand) Synopsis() string { return "Run the kernel once on random tensors." }

func (*runCommand) Usage() string {
	return `run [flags]:
  Runs one invocation of the kernel on randomly generated tensors, and optionally saves them to a .npz file.
`
}

func (c *runCommand) SetFlags(f *flag.FlagSet) {
	c.problemFlags.register(f)
	f.StringVar(&c.saveFile, "save", "", "If set, save input, filter and output to this .npz file.")
}

func (c *runCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	err := exceptions.TryCatch[error](func() { must.M(c.execute(ctx)) })
	if err != nil {
		klog.Errorf("run failed: %+v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *runCommand) execute(ctx context.Context) error {
	pb := must.M1(c.problem())
	kernel := must.M1(c.kernel())
	start := time.Now()
	if err := kernel.Run(ctx, pb.params); err != nil {
		return err
	}
	elapsed := time.Since(start)

	table := pb.summaryTable()
	table.Row("config", kernel.Config().String())
	table.Row("time", elapsed.String())
	table.Row("rate", pb.flopRate(elapsed))
	fmt.Println(table.Render())

	if c.saveFile != "" {
		if err := pb.save(c.saveFile); err != nil {
			return err
		}
		fmt.Printf("Saved tensors to %q\n", c.saveFile)
	}
	return nil
}

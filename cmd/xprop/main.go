// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// xprop runs, verifies and benchmarks the xprop forward convolution kernel on randomly generated tensors.
//
// Examples:
//
//	xprop run -c=3 -k=64 -n=128 -dhw=8,8 -trs=3,3 -pads=0,1,1 -save=/tmp/out.npz
//	xprop verify -dtype=int16 -rescale=0.25 -truncate=4
//	XPROP_CONFIG=pipeline=sequential xprop bench -iterations=20
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&runCommand{}, "")
	subcommands.Register(&verifyCommand{}, "")
	subcommands.Register(&benchCommand{}, "")

	flag.Parse()
	ctx := context.Background()
	status := subcommands.Execute(ctx)
	klog.Flush()
	os.Exit(int(status))
}

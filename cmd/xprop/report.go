// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/xprop/pkg/kernels/xprop"
)

var (
	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)
)

func newPlainTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

// summaryTable describes the problem of the invocation.
func (pb *problem) summaryTable() *lgtable.Table {
	params := pb.params
	table := newPlainTable()
	table.Row("convolution", pb.conv.String())
	table.Row("operands", fmt.Sprintf("%s, output %s", params.Format(), params.Output.DType()))
	table.Row("blend", fmt.Sprintf("alpha=%g, beta=%g", params.Alpha, params.Beta))
	if params.Format().IsQuantized() {
		truncation := "disabled"
		if params.Truncates() {
			truncation = fmt.Sprintf("every %d groups", params.TruncationInterval())
		}
		table.Row("rescale", fmt.Sprintf("%g, truncation %s", params.Rescale, truncation))
	}
	table.Row("output channels", fmt.Sprintf("[%d, %d)", params.KOffset,
		min(params.K, params.KOffset+params.Grid.KBlocks*xprop.TileK)))
	table.Row("grid", fmt.Sprintf("%s: %s blocks", params.Grid, humanize.Comma(int64(params.Grid.NumBlocks()))))
	table.Row("reduction", fmt.Sprintf("lutSize=%d, %d iterations", params.LUTSize, params.NumIterations()))
	memory := pb.input.Len()*params.Format().Size() + pb.filter.Len()*params.Format().Size() +
		pb.output.Len()*params.Output.DType().Size()
	table.Row("memory", humanize.Bytes(uint64(memory)))
	table.Row("work", humanize.SIWithDigits(float64(pb.conv.FLOPs()), 2, "FLOP"))
	return table
}

// flopRate formats the rate of floating point operations of elapsed time per invocation.
func (pb *problem) flopRate(elapsed time.Duration) string {
	if elapsed <= 0 {
		return "-"
	}
	return humanize.SIWithDigits(float64(pb.conv.FLOPs())/elapsed.Seconds(), 2, "FLOP/s")
}

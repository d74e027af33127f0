// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

// Remap is the fixed, invertible mapping from the logical position of a chunk of FragmentDim values in a
// staging row to its physical slot.
//
// The stager writes through Slot and the reduction engine reads through Slot: as long as both agree the
// mapping is transparent. Logical is the inverse of Slot for a given row.
type Remap interface {
	// Name of the remap, as used in the configuration.
	Name() string

	// Slot returns the physical chunk slot of the logical chunk in the given staging row.
	// numChunks is the number of chunks in the row, a power of 2 >= GroupSize.
	Slot(row, chunk, numChunks int) int

	// Logical returns the logical chunk stored at the physical slot.
	Logical(row, slot, numChunks int) int
}

// IdentityRemap stores chunks in order.
type IdentityRemap struct{}

// Name implements Remap.
func (IdentityRemap) Name() string { return "identity" }

// Slot implements Remap.
func (IdentityRemap) Slot(_, chunk, _ int) int { return chunk }

// Logical implements Remap.
func (IdentityRemap) Logical(_, slot, _ int) int { return slot }

// XORRemap rotates chunks by xor-ing their index with the staging row: consecutive rows of the same
// logical column land on different slots. It is an involution.
type XORRemap struct{}

// Name implements Remap.
func (XORRemap) Name() string { return "xor" }

// Slot implements Remap.
func (XORRemap) Slot(row, chunk, numChunks int) int { return chunk ^ (row & (numChunks - 1)) }

// Logical implements Remap.
func (r XORRemap) Logical(row, slot, numChunks int) int { return r.Slot(row, slot, numChunks) }

// remapByName returns the Remap with the given name, or nil.
func remapByName(name string) Remap {
	switch name {
	case IdentityRemap{}.Name():
		return IdentityRemap{}
	case XORRemap{}.Name():
		return XORRemap{}
	}
	return nil
}

// physicalIndex returns the index in a staging half (GroupSize rows of width values) of the logical (row, col).
func physicalIndex(remap Remap, row, col, width int) int {
	return row*width + remap.Slot(row, col/FragmentDim, width/FragmentDim)*FragmentDim + col%FragmentDim
}

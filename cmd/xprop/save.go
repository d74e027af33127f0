// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/gomlx/xprop/pkg/kernels/xprop"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio/npz"
	"github.com/x448/float16"
)

// save writes the tensors of the problem to a .npz file, as flat arrays with their shapes:
// "input", "filter" and "output", and "input_shape", "filter_shape" and "output_shape".
//
// Float16 values are written as float32.
func (pb *problem) save(path string) (err error) {
	w, err := npz.Create(path)
	if err != nil {
		return errors.Wrapf(err, "while creating %q", path)
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil && err == nil {
			err = errors.Wrapf(closeErr, "while closing %q", path)
		}
	}()
	for _, entry := range []struct {
		name   string
		tensor xprop.Tensor
		shape  []int
	}{
		{"input", pb.input, pb.conv.InputShape()},
		{"filter", pb.filter, pb.conv.FilterShape()},
		{"output", pb.output, pb.conv.OutputShape()},
	} {
		if err = w.Write(entry.name, npyValues(entry.tensor)); err != nil {
			return errors.Wrapf(err, "while writing %q to %q", entry.name, path)
		}
		shape := make([]int64, len(entry.shape))
		for ii, dim := range entry.shape {
			shape[ii] = int64(dim)
		}
		if err = w.Write(entry.name+"_shape", shape); err != nil {
			return errors.Wrapf(err, "while writing %q to %q", entry.name+"_shape", path)
		}
	}
	return nil
}

// npyValues returns the flat values of the tensor in a type supported by the npy format.
func npyValues(t xprop.Tensor) any {
	if flat, ok := t.Flat.([]float16.Float16); ok {
		values := make([]float32, len(flat))
		for ii, v := range flat {
			values[ii] = v.Float32()
		}
		return values
	}
	return t.Flat
}

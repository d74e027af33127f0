// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for the storage formats accepted by the xprop kernel.
//
// It is a much reduced fork of the GoMLX dtypes package: only the formats a convolution operand can be
// staged from are kept, plus the generics constraints used to dispatch on them.
package dtypes

import (
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters don't follow the specifications.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

func init() {
	// Add a mapping to the lower-case version of dtypes.
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if _, found := MapOfNames[lowerKey]; found {
			continue
		}
		MapOfNames[lowerKey] = MapOfNames[key]
	}
}

// Storage represents the Go types a tensor can be stored as.
// Used as a Generics constraint.
type Storage interface {
	float32 | float16.Float16 | int16
}

// FromName returns the DType for the given name (or alias), case-insensitive.
func FromName(name string) (DType, error) {
	dtype, found := MapOfNames[name]
	if !found {
		dtype, found = MapOfNames[strings.ToLower(name)]
	}
	if !found || dtype == InvalidDType {
		return InvalidDType, errors.Errorf("unknown dtype %q", name)
	}
	return dtype, nil
}

// FromGenericsType returns the DType enum for the given type that this package knows about.
func FromGenericsType[T Storage]() DType {
	var t T
	switch (any(t)).(type) {
	case float32:
		return Float32
	case float16.Float16:
		return Float16
	case int16:
		return Int16
	}
	return InvalidDType
}

// FromFlat returns the DType of a flat slice of one of the Storage types, or InvalidDType.
func FromFlat(flat any) DType {
	switch flat.(type) {
	case []float32:
		return Float32
	case []float16.Float16:
		return Float16
	case []int16:
		return Int16
	}
	return InvalidDType
}

// Size returns the number of bytes for the given DType.
func (dtype DType) Size() int {
	switch dtype {
	case Float32:
		return 4
	case Float16, Int16:
		return 2
	}
	panicf("Size() not defined for dtype %s", dtype)
	return 0
}

// Bits returns the number of bits for the given DType.
func (dtype DType) Bits() int {
	return dtype.Size() * 8
}

var (
	float32Type = reflect.TypeOf(float32(0))
	float16Type = reflect.TypeOf(float16.Float16(0))
	int16Type   = reflect.TypeOf(int16(0))
)

// GoType returns the Go `reflect.Type` corresponding to the DType.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Float32:
		return float32Type
	case Float16:
		return float16Type
	case Int16:
		return int16Type
	}
	panicf("unknown dtype %q (%d) in DType.GoType", dtype, dtype)
	return nil
}

// MakeFlat allocates a zero-initialized flat slice of the given length for dtype.
func (dtype DType) MakeFlat(length int) any {
	return reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), length, length).Interface()
}

// IsFloat returns whether dtype is a floating point format.
func (dtype DType) IsFloat() bool {
	return dtype == Float32 || dtype == Float16
}

// IsQuantized returns whether dtype is the 16-bit quantized integer format.
func (dtype DType) IsQuantized() bool {
	return dtype == Int16
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

// DType is an enum of the storage formats a convolution operand can be kept in.
//
// The accumulation format is always Float32, regardless of the storage format.
type DType int32

const (
	// InvalidDType is the zero value, it serves as default.
	InvalidDType DType = 0

	// Float32 is IEEE-754 single precision, stored as Go float32.
	Float32 DType = 1

	// Float16 is IEEE-754 half precision, stored as github.com/x448/float16.Float16.
	Float16 DType = 2

	// Int16 is a 16-bit quantized integer. Values are taken as exact integers
	// and scaled by the invocation's rescale factor only at output time.
	Int16 DType = 3
)

// F32, F16 and I16 are short aliases.
const (
	F32 = Float32
	F16 = Float16
	I16 = Int16
)

// String implements fmt.Stringer.
func (dtype DType) String() string {
	switch dtype {
	case Float32:
		return "Float32"
	case Float16:
		return "Float16"
	case Int16:
		return "Int16"
	default:
		return "InvalidDType"
	}
}

// MapOfNames to their dtypes. It includes also aliases to the various dtypes.
// It is also later initialized to include the lower-case version of the names.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Float32":      Float32,
	"F32":          Float32,
	"Float16":      Float16,
	"F16":          Float16,
	"Half":         Float16,
	"Int16":        Int16,
	"I16":          Int16,
	"Quantized":    Int16,
}

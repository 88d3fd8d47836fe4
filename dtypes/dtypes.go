// Package dtypes defines the tensor element types supported by program
// packages and their host representations.
package dtypes

import (
	"strings"
)

// DType is the element type of a tensor stored in a program package.
//
// The numeric values are part of the package wire format and must not be
// reordered.
type DType int32

//go:generate go tool enumer -type=DType dtypes.go

const (
	// InvalidDType represents an invalid (or not set) dtype.
	InvalidDType DType = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float16
	Float32
	Float64
	BFloat16
)

// Short aliases commonly used by compiler tooling.
const (
	F16  = Float16
	F32  = Float32
	F64  = Float64
	BF16 = BFloat16
	S8   = Int8
	S16  = Int16
	S32  = Int32
	S64  = Int64
	U8   = Uint8
	U16  = Uint16
	U32  = Uint32
	U64  = Uint64
)

// Size returns the number of bytes one element occupies in the host
// representation. It returns 0 for InvalidDType.
func (dtype DType) Size() int {
	switch dtype {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16, Float16, BFloat16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

// IsFloat returns whether dtype is a floating point type, including the
// 16-bit formats.
func (dtype DType) IsFloat() bool {
	switch dtype {
	case Float16, Float32, Float64, BFloat16:
		return true
	}
	return false
}

// IsInt returns whether dtype is a signed or unsigned integer type.
func (dtype DType) IsInt() bool {
	switch dtype {
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// MapOfNames maps the canonical names, lower-case names and the usual
// aliases ("F32", "bf16", ...) to the corresponding DType.
var MapOfNames = map[string]DType{}

func init() {
	aliases := map[string]DType{
		"PRED": Bool,
		"F16":  Float16,
		"F32":  Float32,
		"F64":  Float64,
		"BF16": BFloat16,
		"S8":   Int8,
		"S16":  Int16,
		"S32":  Int32,
		"S64":  Int64,
		"U8":   Uint8,
		"U16":  Uint16,
		"U32":  Uint32,
		"U64":  Uint64,
	}
	for _, dtype := range DTypeValues() {
		if dtype == InvalidDType {
			continue
		}
		MapOfNames[dtype.String()] = dtype
		MapOfNames[strings.ToLower(dtype.String())] = dtype
	}
	for name, dtype := range aliases {
		MapOfNames[name] = dtype
		MapOfNames[strings.ToLower(name)] = dtype
	}
}

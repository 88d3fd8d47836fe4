package dtypes

import (
	"encoding/binary"
	"math"

	"github.com/d4l3k/go-bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// ToFloat32s decodes data, a little-endian host buffer of dtype elements,
// into float32 values. Integer types are converted numerically; Float64
// values are truncated to float32.
func ToFloat32s(dtype DType, data []byte) ([]float32, error) {
	elemSize := dtype.Size()
	if elemSize == 0 {
		return nil, errors.Errorf("ToFloat32s: unsupported dtype %s", dtype)
	}
	if len(data)%elemSize != 0 {
		return nil, errors.Errorf("ToFloat32s: buffer of %d bytes is not a multiple of %s element size (%d)",
			len(data), dtype, elemSize)
	}
	n := len(data) / elemSize
	switch dtype {
	case Float16:
		values := make([]float32, n)
		for i := range values {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32()
		}
		return values, nil
	case BFloat16:
		return bfloat16.DecodeFloat32(data), nil
	case Float32:
		values := make([]float32, n)
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return values, nil
	case Float64:
		values := make([]float32, n)
		for i := range values {
			values[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:])))
		}
		return values, nil
	case Int8:
		values := make([]float32, n)
		for i := range values {
			values[i] = float32(int8(data[i]))
		}
		return values, nil
	case Uint8:
		values := make([]float32, n)
		for i := range values {
			values[i] = float32(data[i])
		}
		return values, nil
	case Int32:
		values := make([]float32, n)
		for i := range values {
			values[i] = float32(int32(binary.LittleEndian.Uint32(data[4*i:])))
		}
		return values, nil
	}
	return nil, errors.Errorf("ToFloat32s: unsupported dtype %s", dtype)
}

// FromFloat32s encodes values as a little-endian host buffer of dtype
// elements, the inverse of ToFloat32s.
func FromFloat32s(dtype DType, values []float32) ([]byte, error) {
	switch dtype {
	case Float16:
		data := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(data[2*i:], float16.Fromfloat32(v).Bits())
		}
		return data, nil
	case BFloat16:
		return bfloat16.EncodeFloat32(values), nil
	case Float32:
		data := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
		}
		return data, nil
	case Float64:
		data := make([]byte, 8*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(float64(v)))
		}
		return data, nil
	case Int8:
		data := make([]byte, len(values))
		for i, v := range values {
			data[i] = byte(int8(v))
		}
		return data, nil
	case Uint8:
		data := make([]byte, len(values))
		for i, v := range values {
			data[i] = byte(v)
		}
		return data, nil
	case Int32:
		data := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(data[4*i:], uint32(int32(v)))
		}
		return data, nil
	}
	return nil, errors.Errorf("FromFloat32s: unsupported dtype %s", dtype)
}

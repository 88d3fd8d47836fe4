package dtypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDType_Size(t *testing.T) {
	require.Equal(t, 0, InvalidDType.Size())
	require.Equal(t, 1, Bool.Size())
	require.Equal(t, 1, Int8.Size())
	require.Equal(t, 2, Float16.Size())
	require.Equal(t, 2, BFloat16.Size())
	require.Equal(t, 4, Float32.Size())
	require.Equal(t, 8, Float64.Size())
	require.Equal(t, 8, Uint64.Size())
}

func TestMapOfNames(t *testing.T) {
	require.Equal(t, Float16, MapOfNames["Float16"])
	require.Equal(t, Float16, MapOfNames["float16"])
	require.Equal(t, Float16, MapOfNames["F16"])
	require.Equal(t, Float16, MapOfNames["f16"])

	require.Equal(t, BFloat16, MapOfNames["BFloat16"])
	require.Equal(t, BFloat16, MapOfNames["bfloat16"])
	require.Equal(t, BFloat16, MapOfNames["BF16"])
	require.Equal(t, BFloat16, MapOfNames["bf16"])

	require.Equal(t, Bool, MapOfNames["PRED"])
	require.Equal(t, Int32, MapOfNames["S32"])
}

func TestDTypeString(t *testing.T) {
	require.Equal(t, "Float32", Float32.String())
	dtype, err := DTypeString("BFloat16")
	require.NoError(t, err)
	require.Equal(t, BFloat16, dtype)
	_, err = DTypeString("NotADType")
	require.Error(t, err)
}

func TestFloat32Conversions(t *testing.T) {
	values := []float32{0, 1, -1, 0.5, 3}
	for _, dtype := range []DType{Float16, BFloat16, Float32, Float64} {
		data, err := FromFloat32s(dtype, values)
		require.NoError(t, err)
		require.Len(t, data, len(values)*dtype.Size())
		back, err := ToFloat32s(dtype, data)
		require.NoError(t, err)
		require.Equal(t, values, back, "round-trip through %s", dtype)
	}

	// Integer types.
	data, err := FromFloat32s(Int8, []float32{-3, 7})
	require.NoError(t, err)
	back, err := ToFloat32s(Int8, data)
	require.NoError(t, err)
	require.Equal(t, []float32{-3, 7}, back)
}

func TestToFloat32s_BadInput(t *testing.T) {
	_, err := ToFloat32s(Float32, []byte{1, 2, 3})
	require.Error(t, err)
	_, err = ToFloat32s(InvalidDType, nil)
	require.Error(t, err)
}

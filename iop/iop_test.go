package iop

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gomlx/gotsp/dtypes"
)

// matmulPackage fabricates the package used across the tests: one program
// ("matmul") with one entry point ("main"), two contiguous float32 inputs
// A[100,250] (100000 bytes) and B[250,400] (400000 bytes) sharing a 500000
// bytes input region, and one float32 output C[100,400] (160000 bytes).
func matmulPackage(t *testing.T) []byte {
	b := NewBuilder()
	pb := b.AddProgram("matmul").WithInstructions([]byte("fake device code"))
	ep := pb.AddEntryPoint("main")
	ep.Input().
		AddContiguous("A", dtypes.Float32, []int{100, 250}, 0).
		AddContiguous("B", dtypes.Float32, []int{250, 400}, 100000)
	ep.Output().
		AddContiguous("C", dtypes.Float32, []int{100, 400}, 0)
	data, err := b.Encode()
	require.NoError(t, err)
	return data
}

func TestDecode_Tree(t *testing.T) {
	pkg, err := Decode(matmulPackage(t))
	require.NoError(t, err)

	require.Equal(t, 1, pkg.NumPrograms())
	program, err := pkg.Program(0)
	require.NoError(t, err)
	require.Equal(t, "matmul", program.Name())
	require.Equal(t, []byte("fake device code"), program.Instructions())
	require.Equal(t, 500000, program.InputSize())
	require.Equal(t, 160000, program.OutputSize())

	require.Equal(t, 1, program.NumEntryPoints())
	ep, err := program.EntryPoint(0)
	require.NoError(t, err)
	require.Equal(t, "main", ep.Name())

	input := ep.Input()
	require.Equal(t, 2, input.NumTensorLayouts())
	require.Equal(t, 500000, input.Size())
	a, err := input.TensorLayout(0)
	require.NoError(t, err)
	require.Equal(t, "A", a.Name())
	require.Equal(t, Contiguous, a.Format())
	require.Equal(t, dtypes.Float32, a.DType())
	require.Equal(t, []int{100, 250}, a.Dimensions())
	require.Equal(t, 100000, a.HostSize())
	require.Equal(t, 500000, a.RegionSize())

	output := ep.Output()
	require.Equal(t, 1, output.NumTensorLayouts())
	c, err := output.TensorLayout(0)
	require.NoError(t, err)
	require.Equal(t, "C", c.Name())
	require.Equal(t, 160000, c.HostSize())
	require.Equal(t, 25000, a.NumElements())
	require.Equal(t, 2, c.Rank())
}

func TestDecode_Determinism(t *testing.T) {
	data := matmulPackage(t)
	pkg1, err := Decode(data)
	require.NoError(t, err)
	pkg2, err := Decode(data)
	require.NoError(t, err)

	require.Equal(t, pkg1.NumPrograms(), pkg2.NumPrograms())
	for i := range pkg1.Programs() {
		p1, p2 := pkg1.Programs()[i], pkg2.Programs()[i]
		require.Equal(t, p1.Name(), p2.Name())
		require.Equal(t, p1.NumEntryPoints(), p2.NumEntryPoints())
		for j := range p1.EntryPoints() {
			ep1, ep2 := p1.EntryPoints()[j], p2.EntryPoints()[j]
			require.Equal(t, ep1.Name(), ep2.Name())
			for _, pair := range [][2]*IODescriptor{
				{ep1.Input(), ep2.Input()},
				{ep1.Output(), ep2.Output()},
			} {
				require.Equal(t, pair[0].Size(), pair[1].Size())
				require.Equal(t, pair[0].NumTensorLayouts(), pair[1].NumTensorLayouts())
				for k := range pair[0].TensorLayouts() {
					tl1, tl2 := pair[0].TensorLayouts()[k], pair[1].TensorLayouts()[k]
					require.Equal(t, tl1.Name(), tl2.Name())
					require.Equal(t, tl1.Dimensions(), tl2.Dimensions())
					require.Equal(t, tl1.HostSize(), tl2.HostSize())
				}
			}
		}
	}

	// The trees are independent: they do not alias the caller's buffer.
	for i := range data {
		data[i] = 0xFF
	}
	program, err := pkg1.Program(0)
	require.NoError(t, err)
	require.Equal(t, []byte("fake device code"), program.Instructions())
}

func TestDecode_Malformed(t *testing.T) {
	valid := matmulPackage(t)

	testCases := []struct {
		name    string
		corrupt func([]byte) []byte
	}{
		{"empty", func(data []byte) []byte { return nil }},
		{"truncated header", func(data []byte) []byte { return data[:10] }},
		{"bad magic", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data, 0xDEADBEEF)
			return data
		}},
		{"bad version", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data[4:], 999)
			return data
		}},
		{"header length beyond buffer", func(data []byte) []byte {
			binary.LittleEndian.PutUint64(data[8:], uint64(len(data)))
			return data
		}},
		{"corrupted metadata", func(data []byte) []byte {
			for i := iopHeaderSize; i < iopHeaderSize+8; i++ {
				data[i] = 0xFF
			}
			return data
		}},
		{"truncated payload", func(data []byte) []byte { return data[:len(data)-4] }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := make([]byte, len(valid))
			copy(data, valid)
			pkg, err := Decode(tc.corrupt(data))
			require.ErrorIs(t, err, ErrParse)
			require.Nil(t, pkg)
		})
	}
}

func TestDecode_LayoutValidation(t *testing.T) {
	t.Run("host size inconsistent with shape", func(t *testing.T) {
		b := NewBuilder()
		ep := b.AddProgram("p").AddEntryPoint("main")
		ep.Input().AddContiguous("x", dtypes.Float32, []int{4}, 0)
		ep.Input().layouts[0].HostSize = 17
		_, err := b.Encode()
		require.ErrorIs(t, err, ErrParse)
	})

	t.Run("zero dimension", func(t *testing.T) {
		b := NewBuilder()
		ep := b.AddProgram("p").AddEntryPoint("main")
		ep.Input().AddContiguous("x", dtypes.Float32, []int{4, 0}, 0)
		_, err := b.Encode()
		require.ErrorIs(t, err, ErrParse)
	})

	t.Run("contiguous span outside region", func(t *testing.T) {
		b := NewBuilder()
		ep := b.AddProgram("p").AddEntryPoint("main")
		ep.Input().WithSize(8).AddContiguous("x", dtypes.Float32, []int{4}, 0)
		_, err := b.Encode()
		require.ErrorIs(t, err, ErrParse)
	})

	t.Run("strided reach outside region", func(t *testing.T) {
		b := NewBuilder()
		ep := b.AddProgram("p").AddEntryPoint("main")
		ep.Input().WithSize(16).AddStrided("x", dtypes.Int32, []int{4}, 0, []int{8})
		_, err := b.Encode()
		require.ErrorIs(t, err, ErrParse)
	})

	t.Run("stride count mismatch", func(t *testing.T) {
		b := NewBuilder()
		ep := b.AddProgram("p").AddEntryPoint("main")
		ep.Input().AddStrided("x", dtypes.Int32, []int{2, 2}, 0, []int{16})
		_, err := b.Encode()
		require.ErrorIs(t, err, ErrParse)
	})

	t.Run("duplicate tensor name", func(t *testing.T) {
		b := NewBuilder()
		ep := b.AddProgram("p").AddEntryPoint("main")
		ep.Input().
			AddContiguous("x", dtypes.Float32, []int{4}, 0).
			AddContiguous("x", dtypes.Float32, []int{4}, 16)
		_, err := b.Encode()
		require.ErrorIs(t, err, ErrParse)
	})

	t.Run("descriptor larger than program aggregate", func(t *testing.T) {
		b := NewBuilder()
		pb := b.AddProgram("p").WithAggregateSizes(8, 8)
		ep := pb.AddEntryPoint("main")
		ep.Input().AddContiguous("x", dtypes.Float32, []int{4}, 0)
		_, err := b.Encode()
		require.ErrorIs(t, err, ErrParse)
	})
}

func TestDecodeExtent_Bounds(t *testing.T) {
	// The bound must fit an int even on 32-bit platforms.
	v, err := decodeExtent(maxExtent, "host size")
	require.NoError(t, err)
	require.Equal(t, maxExtent, v)
	require.Greater(t, v, 0)

	_, err = decodeExtent(maxExtent+1, "host size")
	require.ErrorIs(t, err, ErrParse)
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matmul.iop")
	b := NewBuilder()
	ep := b.AddProgram("matmul").AddEntryPoint("main")
	ep.Input().AddContiguous("A", dtypes.Float32, []int{2, 3}, 0)
	ep.Output().AddContiguous("C", dtypes.Float32, []int{2, 3}, 0)
	require.NoError(t, b.WriteFile(path))

	pkg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, pkg.NumPrograms())
	require.Equal(t, "matmul", pkg.Programs()[0].Name())

	_, err = Load(filepath.Join(t.TempDir(), "missing.iop"))
	require.Error(t, err)
}

func TestAccessors_OutOfRange(t *testing.T) {
	pkg, err := Decode(matmulPackage(t))
	require.NoError(t, err)

	_, err = pkg.Program(1)
	require.Error(t, err)
	_, err = pkg.Program(-1)
	require.Error(t, err)

	program, err := pkg.Program(0)
	require.NoError(t, err)
	_, err = program.EntryPoint(1)
	require.Error(t, err)

	ep, err := program.EntryPoint(0)
	require.NoError(t, err)
	_, err = ep.Input().TensorLayout(2)
	require.Error(t, err)
	_, err = ep.Input().TensorLayout(-1)
	require.Error(t, err)
}

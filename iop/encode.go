package iop

import (
	"encoding/binary"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/gomlx/gotsp/dtypes"
)

// Builder assembles a program package in memory. It is used by compiler
// tooling and by tests to fabricate packages; the runtime itself only ever
// decodes.
//
// Layout follows the usual builder pattern: AddProgram, AddEntryPoint and
// the descriptor Add* methods append in order, which fixes the program,
// entry-point and slot indices callers will use. Encode serializes the
// package and then decodes it again, so a Builder can never produce bytes
// the parser would reject.
type Builder struct {
	programs []*ProgramBuilder
}

// NewBuilder returns an empty package builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddProgram appends a program and returns its builder.
func (b *Builder) AddProgram(name string) *ProgramBuilder {
	pb := &ProgramBuilder{name: name}
	b.programs = append(b.programs, pb)
	return pb
}

// Encode serializes the package and validates the result by decoding it.
func (b *Builder) Encode() ([]byte, error) {
	header := fileHeader{Programs: make([]fileProgram, 0, len(b.programs))}
	var payload []byte
	for _, pb := range b.programs {
		fp := pb.toWire()
		fp.Instructions = fileSegment{
			Offset: uint64(len(payload)),
			Length: uint64(len(pb.instructions)),
		}
		payload = append(payload, pb.instructions...)
		header.Programs = append(header.Programs, fp)
	}
	headerBytes, err := cbor.Marshal(&header)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode package header")
	}

	data := make([]byte, iopHeaderSize, iopHeaderSize+len(headerBytes)+len(payload))
	binary.LittleEndian.PutUint32(data, iopMagic)
	binary.LittleEndian.PutUint32(data[4:], iopVersion)
	binary.LittleEndian.PutUint64(data[8:], uint64(len(headerBytes)))
	data = append(data, headerBytes...)
	data = append(data, payload...)

	// Reuse the decoder's validation, so Encode and Decode can never drift.
	if _, err := Decode(data); err != nil {
		return nil, errors.WithMessagef(err, "builder produced an invalid package")
	}
	return data, nil
}

// WriteFile encodes the package and writes it to path.
func (b *Builder) WriteFile(path string) error {
	data, err := b.Encode()
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, data, 0644), "failed to write program package to %q", path)
}

// ProgramBuilder assembles one program of a package.
type ProgramBuilder struct {
	name                  string
	inputSize, outputSize int
	sizesSet              bool
	instructions          []byte
	entryPoints           []*EntryPointBuilder
}

// WithInstructions sets the program's raw device instruction segment.
func (pb *ProgramBuilder) WithInstructions(instructions []byte) *ProgramBuilder {
	pb.instructions = instructions
	return pb
}

// WithAggregateSizes sets the program-level device-side staging sizes. If
// not set, they default to the largest input/output descriptor size among
// the program's entry points.
func (pb *ProgramBuilder) WithAggregateSizes(inputSize, outputSize int) *ProgramBuilder {
	pb.inputSize = inputSize
	pb.outputSize = outputSize
	pb.sizesSet = true
	return pb
}

// AddEntryPoint appends an entry point and returns its builder.
func (pb *ProgramBuilder) AddEntryPoint(name string) *EntryPointBuilder {
	ep := &EntryPointBuilder{
		name:   name,
		input:  &DescriptorBuilder{},
		output: &DescriptorBuilder{},
	}
	pb.entryPoints = append(pb.entryPoints, ep)
	return ep
}

func (pb *ProgramBuilder) toWire() fileProgram {
	fp := fileProgram{
		Name:        pb.name,
		EntryPoints: make([]fileEntryPoint, 0, len(pb.entryPoints)),
	}
	inputSize, outputSize := pb.inputSize, pb.outputSize
	for _, ep := range pb.entryPoints {
		fep := fileEntryPoint{
			Name:   ep.name,
			Input:  ep.input.toWire(),
			Output: ep.output.toWire(),
		}
		if !pb.sizesSet {
			inputSize = max(inputSize, int(fep.Input.Size))
			outputSize = max(outputSize, int(fep.Output.Size))
		}
		fp.EntryPoints = append(fp.EntryPoints, fep)
	}
	fp.InputSize = uint64(inputSize)
	fp.OutputSize = uint64(outputSize)
	return fp
}

// EntryPointBuilder assembles one entry point: its input and output
// descriptors.
type EntryPointBuilder struct {
	name          string
	input, output *DescriptorBuilder
}

// Input returns the builder of the entry point's input descriptor.
func (ep *EntryPointBuilder) Input() *DescriptorBuilder { return ep.input }

// Output returns the builder of the entry point's output descriptor.
func (ep *EntryPointBuilder) Output() *DescriptorBuilder { return ep.output }

// DescriptorBuilder assembles one side of an entry point. The Add* call
// order fixes the slot indices.
type DescriptorBuilder struct {
	size    int
	sizeSet bool
	layouts []fileLayout
}

// WithSize sets the device-side region span. If not set, it defaults to the
// smallest span covering all added layouts.
func (db *DescriptorBuilder) WithSize(size int) *DescriptorBuilder {
	db.size = size
	db.sizeSet = true
	return db
}

// AddContiguous appends a tensor stored as one dense span at the given byte
// offset of the shared device region.
func (db *DescriptorBuilder) AddContiguous(name string, dtype dtypes.DType, dimensions []int, offset int) *DescriptorBuilder {
	fl := fileLayout{
		Name:       name,
		Format:     int32(Contiguous),
		DType:      int32(dtype),
		Dimensions: toUint32s(dimensions),
		HostSize:   uint64(numElementsOf(dimensions) * dtype.Size()),
		Offset:     uint64(offset),
	}
	db.layouts = append(db.layouts, fl)
	return db
}

// AddStrided appends a tensor scattered across the shared device region with
// the given per-dimension byte strides.
func (db *DescriptorBuilder) AddStrided(name string, dtype dtypes.DType, dimensions []int, offset int, strides []int) *DescriptorBuilder {
	fl := fileLayout{
		Name:       name,
		Format:     int32(Strided),
		DType:      int32(dtype),
		Dimensions: toUint32s(dimensions),
		HostSize:   uint64(numElementsOf(dimensions) * dtype.Size()),
		Offset:     uint64(offset),
		Strides:    make([]uint64, len(strides)),
	}
	for d, s := range strides {
		fl.Strides[d] = uint64(s)
	}
	db.layouts = append(db.layouts, fl)
	return db
}

func (db *DescriptorBuilder) toWire() fileDescriptor {
	fd := fileDescriptor{Layouts: db.layouts}
	if db.sizeSet {
		fd.Size = uint64(db.size)
		return fd
	}
	end := 0
	for i := range db.layouts {
		fl := &db.layouts[i]
		elemSize := dtypes.DType(fl.DType).Size()
		last := int(fl.Offset) + elemSize
		if Format(fl.Format) == Contiguous {
			last = int(fl.Offset) + int(fl.HostSize)
		} else {
			for d, s := range fl.Strides {
				last += (int(fl.Dimensions[d]) - 1) * int(s)
			}
		}
		end = max(end, last)
	}
	fd.Size = uint64(end)
	return fd
}

func toUint32s(dimensions []int) []uint32 {
	dims := make([]uint32, len(dimensions))
	for d, dim := range dimensions {
		dims[d] = uint32(dim)
	}
	return dims
}

func numElementsOf(dimensions []int) int {
	n := 1
	for _, dim := range dimensions {
		n *= dim
	}
	return n
}

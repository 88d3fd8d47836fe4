package iop

import (
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/gomlx/gotsp/dtypes"
)

func (pkg *IOP) decode() error {
	if len(pkg.data) < iopHeaderSize {
		return errors.Wrapf(ErrParse, "package has %d bytes, smaller than the %d bytes file header",
			len(pkg.data), iopHeaderSize)
	}
	if magic := binary.LittleEndian.Uint32(pkg.data); magic != iopMagic {
		return errors.Wrapf(ErrParse, "bad magic number 0x%08X", magic)
	}
	if version := binary.LittleEndian.Uint32(pkg.data[4:]); version != iopVersion {
		return errors.Wrapf(ErrParse, "unsupported package version %d, this runtime handles version %d",
			version, iopVersion)
	}
	headerLen := binary.LittleEndian.Uint64(pkg.data[8:])
	if headerLen > uint64(len(pkg.data)-iopHeaderSize) {
		return errors.Wrapf(ErrParse, "header length %d exceeds the %d bytes available",
			headerLen, len(pkg.data)-iopHeaderSize)
	}
	var header fileHeader
	if err := cbor.Unmarshal(pkg.data[iopHeaderSize:iopHeaderSize+int(headerLen)], &header); err != nil {
		return errors.Wrapf(ErrParse, "failed to decode package header: %v", err)
	}
	payload := pkg.data[iopHeaderSize+int(headerLen):]
	pkg.programs = make([]*Program, 0, len(header.Programs))
	for i := range header.Programs {
		program, err := decodeProgram(&header.Programs[i], payload)
		if err != nil {
			return errors.WithMessagef(err, "program #%d (%q)", i, header.Programs[i].Name)
		}
		pkg.programs = append(pkg.programs, program)
	}
	return nil
}

func decodeProgram(fp *fileProgram, payload []byte) (*Program, error) {
	inputSize, err := decodeExtent(fp.InputSize, "program input size")
	if err != nil {
		return nil, err
	}
	outputSize, err := decodeExtent(fp.OutputSize, "program output size")
	if err != nil {
		return nil, err
	}
	segOffset, err := decodeExtent(fp.Instructions.Offset, "instruction segment offset")
	if err != nil {
		return nil, err
	}
	segLength, err := decodeExtent(fp.Instructions.Length, "instruction segment length")
	if err != nil {
		return nil, err
	}
	if segOffset+segLength > len(payload) {
		return nil, errors.Wrapf(ErrParse, "instruction segment [%d:%d) outside the %d bytes payload",
			segOffset, segOffset+segLength, len(payload))
	}
	program := &Program{
		name:         fp.Name,
		inputSize:    inputSize,
		outputSize:   outputSize,
		instructions: payload[segOffset : segOffset+segLength],
	}
	program.entryPoints = make([]*EntryPoint, 0, len(fp.EntryPoints))
	for i := range fp.EntryPoints {
		fep := &fp.EntryPoints[i]
		input, err := decodeDescriptor(&fep.Input, inputSize, "input")
		if err != nil {
			return nil, errors.WithMessagef(err, "entry point #%d (%q)", i, fep.Name)
		}
		output, err := decodeDescriptor(&fep.Output, outputSize, "output")
		if err != nil {
			return nil, errors.WithMessagef(err, "entry point #%d (%q)", i, fep.Name)
		}
		program.entryPoints = append(program.entryPoints, &EntryPoint{
			name:   fep.Name,
			input:  input,
			output: output,
		})
	}
	return program, nil
}

func decodeDescriptor(fd *fileDescriptor, programSize int, side string) (*IODescriptor, error) {
	size, err := decodeExtent(fd.Size, side+" descriptor size")
	if err != nil {
		return nil, err
	}
	if size > programSize {
		return nil, errors.Wrapf(ErrParse, "%s descriptor spans %d bytes, larger than the program aggregate %s size %d",
			side, size, side, programSize)
	}
	iod := &IODescriptor{size: size}
	seen := make(map[string]bool, len(fd.Layouts))
	iod.layouts = make([]*TensorLayout, 0, len(fd.Layouts))
	for i := range fd.Layouts {
		layout, err := decodeLayout(&fd.Layouts[i], size)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s tensor layout #%d (%q)", side, i, fd.Layouts[i].Name)
		}
		if seen[layout.name] {
			return nil, errors.Wrapf(ErrParse, "duplicate %s tensor layout name %q", side, layout.name)
		}
		seen[layout.name] = true
		iod.layouts = append(iod.layouts, layout)
	}
	return iod, nil
}

func decodeLayout(fl *fileLayout, regionSize int) (*TensorLayout, error) {
	format := Format(fl.Format)
	if !format.IsAFormat() {
		return nil, errors.Wrapf(ErrParse, "unknown tensor format %d", fl.Format)
	}
	dtype := dtypes.DType(fl.DType)
	if !dtype.IsADType() || dtype == dtypes.InvalidDType {
		return nil, errors.Wrapf(ErrParse, "unknown dtype %d", fl.DType)
	}
	hostSize, err := decodeExtent(fl.HostSize, "host size")
	if err != nil {
		return nil, err
	}
	offset, err := decodeExtent(fl.Offset, "offset")
	if err != nil {
		return nil, err
	}

	tl := &TensorLayout{
		name:       fl.Name,
		format:     format,
		dtype:      dtype,
		dimensions: make([]int, len(fl.Dimensions)),
		hostSize:   hostSize,
		regionSize: regionSize,
		offset:     offset,
	}
	numElements := 1
	for d, dim := range fl.Dimensions {
		if dim == 0 || dim > maxExtent {
			return nil, errors.Wrapf(ErrParse, "dimension #%d has invalid extent %d", d, dim)
		}
		tl.dimensions[d] = int(dim)
		if numElements > maxExtent/int(dim) {
			return nil, errors.Wrapf(ErrParse, "tensor has more than %d elements", maxExtent)
		}
		numElements *= int(dim)
	}
	elemSize := dtype.Size()
	if hostSize != numElements*elemSize {
		return nil, errors.Wrapf(ErrParse, "host size %d inconsistent with %d elements of %s (%d bytes each)",
			hostSize, numElements, dtype, elemSize)
	}

	switch format {
	case Contiguous:
		if offset+hostSize > regionSize {
			return nil, errors.Wrapf(ErrParse, "contiguous span [%d:%d) outside the %d bytes device region",
				offset, offset+hostSize, regionSize)
		}
	case Strided:
		if len(fl.Strides) != len(fl.Dimensions) {
			return nil, errors.Wrapf(ErrParse, "%d strides given for %d dimensions",
				len(fl.Strides), len(fl.Dimensions))
		}
		tl.strides = make([]int, len(fl.Strides))
		lastByte := offset + elemSize // one past the last byte of element (0,...,0)
		for d, stride := range fl.Strides {
			s, err := decodeExtent(stride, "stride")
			if err != nil {
				return nil, err
			}
			tl.strides[d] = s
			lastByte += (tl.dimensions[d] - 1) * s
		}
		if lastByte > regionSize {
			return nil, errors.Wrapf(ErrParse, "strided layout reaches byte %d, outside the %d bytes device region",
				lastByte, regionSize)
		}
	}
	return tl, nil
}

// decodeExtent converts a wire-format size/offset/stride to int, bounding it
// to keep later layout arithmetic overflow-free.
func decodeExtent(value uint64, what string) (int, error) {
	if value > maxExtent {
		return 0, errors.Wrapf(ErrParse, "%s %d exceeds the supported maximum %d", what, value, maxExtent)
	}
	return int(value), nil
}

package iop

import "github.com/pkg/errors"

// EntryPoint is a single callable within a program, with fixed input and
// output tensor shapes. Entry points are indexed by position within their
// Program; name uniqueness is not enforced.
type EntryPoint struct {
	name   string
	input  *IODescriptor
	output *IODescriptor
}

// Name of the entry point.
func (ep *EntryPoint) Name() string { return ep.name }

// Input returns the descriptor of the entry point's input tensors.
func (ep *EntryPoint) Input() *IODescriptor { return ep.input }

// Output returns the descriptor of the entry point's output tensors.
func (ep *EntryPoint) Output() *IODescriptor { return ep.output }

// Program is one compiled unit of a package: a name, the device instructions
// and an ordered sequence of entry points. The position of a program in its
// IOP defines the program index used by callers.
type Program struct {
	name         string
	entryPoints  []*EntryPoint
	inputSize    int
	outputSize   int
	instructions []byte // slice into the owning IOP's buffer
}

// Name of the program.
func (p *Program) Name() string { return p.name }

// NumEntryPoints returns the number of entry points.
func (p *Program) NumEntryPoints() int { return len(p.entryPoints) }

// EntryPoints returns the entry points in index order. The returned slice is
// owned by the program and must not be modified.
func (p *Program) EntryPoints() []*EntryPoint { return p.entryPoints }

// EntryPoint returns the entry point at the given index.
func (p *Program) EntryPoint(index int) (*EntryPoint, error) {
	if index < 0 || index >= len(p.entryPoints) {
		return nil, errors.Errorf("entry point index %d out of range, program %q has %d entry points",
			index, p.name, len(p.entryPoints))
	}
	return p.entryPoints[index], nil
}

// InputSize returns the aggregate device-side input staging size of the
// program, covering the input region of any of its entry points.
func (p *Program) InputSize() int { return p.inputSize }

// OutputSize returns the aggregate device-side output staging size of the
// program.
func (p *Program) OutputSize() int { return p.outputSize }

// Instructions returns the program's raw device instruction segment. The
// returned slice aliases the package buffer and must be treated as
// read-only.
func (p *Program) Instructions() []byte { return p.instructions }

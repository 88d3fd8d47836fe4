package iop

import "github.com/pkg/errors"

// IODescriptor is one side (input or output) of an entry point: an ordered
// sequence of tensor layouts plus the span of the device-side region they
// share. The position of a layout in the sequence is the slot index used to
// bind host buffers; it never changes after the package is decoded.
type IODescriptor struct {
	layouts []*TensorLayout
	size    int
}

// Size returns the total device-side byte span covering all tensors of the
// descriptor. Tensors may interleave inside the shared region, so this is
// not the sum of the per-tensor host sizes.
func (iod *IODescriptor) Size() int { return iod.size }

// NumTensorLayouts returns the number of tensor slots.
func (iod *IODescriptor) NumTensorLayouts() int { return len(iod.layouts) }

// TensorLayouts returns the layouts in slot order. The returned slice is
// owned by the descriptor and must not be modified.
func (iod *IODescriptor) TensorLayouts() []*TensorLayout { return iod.layouts }

// TensorLayout returns the layout bound to the given slot index.
func (iod *IODescriptor) TensorLayout(index int) (*TensorLayout, error) {
	if index < 0 || index >= len(iod.layouts) {
		return nil, errors.Errorf("tensor layout index %d out of range, descriptor has %d slots",
			index, len(iod.layouts))
	}
	return iod.layouts[index], nil
}

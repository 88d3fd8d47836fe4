package iop

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/gomlx/gotsp/dtypes"
)

// TensorLayout describes one tensor of an entry point: its shape and element
// type, the size of its dense host representation and how its bytes are
// arranged inside the device-side region it shares with its sibling tensors.
//
// A TensorLayout is immutable after the package is decoded. Conversions
// between the two representations are performed by FromHost and ToHost; they
// validate both buffer lengths before touching any byte and never allocate.
type TensorLayout struct {
	name       string
	format     Format
	dtype      dtypes.DType
	dimensions []int

	hostSize   int
	regionSize int // span of the whole shared region, not only this tensor
	offset     int
	strides    []int // device byte strides per dimension, Strided only
}

// Name of the tensor, unique within its IODescriptor.
func (tl *TensorLayout) Name() string { return tl.name }

// Format of the device-side arrangement.
func (tl *TensorLayout) Format() Format { return tl.format }

// DType is the element type of the tensor.
func (tl *TensorLayout) DType() dtypes.DType { return tl.dtype }

// Rank returns the number of dimensions.
func (tl *TensorLayout) Rank() int { return len(tl.dimensions) }

// Dimensions returns a copy of the dimension extents.
func (tl *TensorLayout) Dimensions() []int {
	dims := make([]int, len(tl.dimensions))
	copy(dims, tl.dimensions)
	return dims
}

// NumElements returns the number of elements of the tensor.
func (tl *TensorLayout) NumElements() int {
	n := 1
	for _, dim := range tl.dimensions {
		n *= dim
	}
	return n
}

// HostSize returns the number of bytes of the dense host representation.
func (tl *TensorLayout) HostSize() int { return tl.hostSize }

// RegionSize returns the span in bytes of the device-side region this tensor
// lives in. The region is shared with the sibling tensors of the same
// IODescriptor, so this is not a per-tensor size.
func (tl *TensorLayout) RegionSize() int { return tl.regionSize }

// String implements fmt.Stringer.
func (tl *TensorLayout) String() string {
	return fmt.Sprintf("%s %s%v (%s, host %s)", tl.name, tl.dtype, tl.dimensions,
		tl.format, humanize.Bytes(uint64(tl.hostSize)))
}

// FromHost converts the dense host representation in host into this tensor's
// device arrangement, writing only this tensor's bytes of the shared region
// device. len(host) must be exactly HostSize and len(device) exactly
// RegionSize, otherwise it fails with ErrSizeMismatch before any byte is
// touched.
func (tl *TensorLayout) FromHost(host, device []byte) error {
	if len(host) != tl.hostSize {
		return errors.Wrapf(ErrSizeMismatch, "FromHost of tensor %q: host buffer is %d bytes, expected %d",
			tl.name, len(host), tl.hostSize)
	}
	if len(device) != tl.regionSize {
		return errors.Wrapf(ErrSizeMismatch, "FromHost of tensor %q: device region is %d bytes, expected %d",
			tl.name, len(device), tl.regionSize)
	}
	if tl.format == Contiguous {
		copy(device[tl.offset:tl.offset+tl.hostSize], host)
		return nil
	}
	elemSize := tl.dtype.Size()
	tl.forEachElement(func(hostPos, devicePos int) {
		copy(device[devicePos:devicePos+elemSize], host[hostPos:hostPos+elemSize])
	})
	return nil
}

// ToHost converts this tensor's bytes of the shared region device into the
// dense host representation host. It mirrors FromHost, including the size
// validation.
func (tl *TensorLayout) ToHost(device, host []byte) error {
	if len(device) != tl.regionSize {
		return errors.Wrapf(ErrSizeMismatch, "ToHost of tensor %q: device region is %d bytes, expected %d",
			tl.name, len(device), tl.regionSize)
	}
	if len(host) != tl.hostSize {
		return errors.Wrapf(ErrSizeMismatch, "ToHost of tensor %q: host buffer is %d bytes, expected %d",
			tl.name, len(host), tl.hostSize)
	}
	if tl.format == Contiguous {
		copy(host, device[tl.offset:tl.offset+tl.hostSize])
		return nil
	}
	elemSize := tl.dtype.Size()
	tl.forEachElement(func(hostPos, devicePos int) {
		copy(host[hostPos:hostPos+elemSize], device[devicePos:devicePos+elemSize])
	})
	return nil
}

// forEachElement walks the tensor elements in row-major order, yielding the
// byte offset of each element in the host representation and in the device
// region. Only used for Strided layouts; extents are validated at decode
// time, so every yielded device offset is in bounds.
func (tl *TensorLayout) forEachElement(fn func(hostPos, devicePos int)) {
	elemSize := tl.dtype.Size()
	if len(tl.dimensions) == 0 {
		fn(0, tl.offset)
		return
	}
	idx := make([]int, len(tl.dimensions))
	devicePos := tl.offset
	hostPos := 0
	for {
		fn(hostPos, devicePos)
		hostPos += elemSize
		d := len(idx) - 1
		for ; d >= 0; d-- {
			idx[d]++
			devicePos += tl.strides[d]
			if idx[d] < tl.dimensions[d] {
				break
			}
			idx[d] = 0
			devicePos -= tl.strides[d] * tl.dimensions[d]
		}
		if d < 0 {
			return
		}
	}
}

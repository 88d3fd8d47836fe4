// Package iop implements the program package container: a self-describing
// binary file holding one or more compiled accelerator programs, their
// callable entry points and the tensor layouts each entry point expects.
//
// A package is decoded eagerly and completely with Decode (or Load, from a
// file); decoding either fully succeeds or fails with an error wrapping
// ErrParse, never yielding a partially usable package. The decoded tree
// (Program, EntryPoint, IODescriptor, TensorLayout) is read-only and owned
// by the IOP, which also owns the raw byte buffer the instruction segments
// point into.
package iop

import (
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// IOP is a decoded program package. It owns the raw package bytes and the
// ordered sequence of programs decoded from them; the position of a program
// defines the program index used by callers.
type IOP struct {
	data     []byte
	programs []*Program
}

// Decode parses a program package from buffer. The buffer is copied, so the
// caller may reuse it. Any malformation fails the whole decode with an error
// wrapping ErrParse.
func Decode(buffer []byte) (*IOP, error) {
	data := make([]byte, len(buffer))
	copy(data, buffer)
	pkg := &IOP{data: data}
	if err := pkg.decode(); err != nil {
		return nil, err
	}
	if klog.V(1).Enabled() {
		klog.Infof("decoded program package: %d bytes, %d program(s)", len(data), len(pkg.programs))
	}
	return pkg, nil
}

// Load reads the file at path and decodes it as a program package.
func Load(path string) (*IOP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read program package from %q", path)
	}
	pkg := &IOP{data: data}
	if err := pkg.decode(); err != nil {
		return nil, errors.WithMessagef(err, "while decoding %q", path)
	}
	return pkg, nil
}

// NumPrograms returns the number of programs in the package.
func (pkg *IOP) NumPrograms() int { return len(pkg.programs) }

// Programs returns the programs in index order. The returned slice is owned
// by the package and must not be modified.
func (pkg *IOP) Programs() []*Program { return pkg.programs }

// Program returns the program at the given index.
func (pkg *IOP) Program(index int) (*Program, error) {
	if index < 0 || index >= len(pkg.programs) {
		return nil, errors.Errorf("program index %d out of range, package has %d programs",
			index, len(pkg.programs))
	}
	return pkg.programs[index], nil
}

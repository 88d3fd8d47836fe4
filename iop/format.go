package iop

// Format describes how a tensor's bytes are arranged inside the device-side
// region it shares with its sibling tensors.
//
// The numeric values are part of the package wire format.
type Format int32

//go:generate go tool enumer -type=Format format.go

const (
	// Strided tensors scatter their elements across the shared region using
	// per-dimension byte strides supplied by the compiler.
	Strided Format = iota

	// Contiguous tensors occupy one dense span of the shared region.
	Contiguous
)

package iop

// Wire format of a program package:
//
//	[0:4)     magic "IOPK", little-endian uint32
//	[4:8)     format version, little-endian uint32
//	[8:16)    header length H, little-endian uint64
//	[16:16+H) CBOR-encoded header (the metadata tree below)
//	[16+H:)   payload: per-program instruction segments addressed by
//	          offset/length recorded in the header
//
// The header carries the whole metadata tree; the payload is opaque device
// code. All offsets in the header are relative to the payload start.

const (
	iopMagic      uint32 = 0x4B504F49 // "IOPK"
	iopVersion    uint32 = 1
	iopHeaderSize        = 16

	// maxExtent bounds every size, offset and stride in a package, keeping
	// all layout arithmetic overflow-free even where int is 32 bits.
	maxExtent = 1<<31 - 1
)

type fileHeader struct {
	Programs []fileProgram `cbor:"programs"`
}

type fileSegment struct {
	Offset uint64 `cbor:"offset"`
	Length uint64 `cbor:"length"`
}

type fileProgram struct {
	Name         string           `cbor:"name"`
	InputSize    uint64           `cbor:"input_size"`
	OutputSize   uint64           `cbor:"output_size"`
	Instructions fileSegment      `cbor:"instructions"`
	EntryPoints  []fileEntryPoint `cbor:"entry_points"`
}

type fileEntryPoint struct {
	Name   string         `cbor:"name"`
	Input  fileDescriptor `cbor:"input"`
	Output fileDescriptor `cbor:"output"`
}

type fileDescriptor struct {
	Size    uint64       `cbor:"size"`
	Layouts []fileLayout `cbor:"layouts"`
}

type fileLayout struct {
	Name       string   `cbor:"name"`
	Format     int32    `cbor:"format"`
	DType      int32    `cbor:"dtype"`
	Dimensions []uint32 `cbor:"dimensions"`
	HostSize   uint64   `cbor:"host_size"`
	Offset     uint64   `cbor:"offset"`
	Strides    []uint64 `cbor:"strides,omitempty"`
}

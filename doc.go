// Package gotsp is a host runtime for tensor streaming accelerators.
//
// It is organized in three layers, from the file format up to execution:
//
//   - iop: parses and builds self-describing program packages. A package
//     holds Programs, their EntryPoints, the input/output IODescriptors and
//     the TensorLayouts that describe how each tensor is marshaled between
//     host-contiguous memory and the device's staging regions.
//
//   - tsp: the driver boundary (Driver, Device, Region, Completion) and the
//     Runner, which binds host buffers to tensor slots and drives single
//     synchronous invocations end to end.
//
//   - tsp/tsptest: a deterministic in-process driver used by tests and
//     examples, registered as the "sim" backend.
//
// Typical use: iop.Load a package, pick a device from a tsp.Driver, load the
// program onto it, then create a tsp.Runner, bind input and output buffers
// and Invoke.
//
// See cmd/iopdump for a package inspector and examples/matmul for a complete
// invocation walk-through.
package gotsp

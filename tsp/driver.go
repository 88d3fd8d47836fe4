// Package tsp drives single synchronous invocations of program-package
// entry points against an accelerator.
//
// The accelerator itself is reached through the narrow Driver/Device/Region
// interfaces defined here; the vendor driver owns device enumeration, memory
// and dispatch, this package owns entry-point resolution, host-buffer
// validation and the host↔device tensor marshalling around one invocation.
// Package tsptest provides a deterministic in-process implementation of the
// interfaces for tests and examples.
package tsp

import (
	"time"

	"github.com/pkg/errors"

	"github.com/gomlx/gotsp/iop"
)

var (
	// ErrAllocation is wrapped by errors allocating device staging regions.
	// It is fatal to runner construction.
	ErrAllocation = errors.New("staging region allocation failed")

	// ErrDispatch is wrapped by errors submitting or executing an
	// invocation. No output conversion happens after it.
	ErrDispatch = errors.New("invocation dispatch failed")

	// ErrTimeout is wrapped by errors reported when an invocation does not
	// complete within the invocation timeout. Implementations of
	// Completion.Wait must return an error wrapping it on expiry.
	ErrTimeout = errors.New("invocation timed out")

	// ErrDriver is wrapped by failures of device lifecycle calls (open,
	// close, reset, clear, load).
	ErrDriver = errors.New("driver call failed")
)

// Driver is a session with the vendor driver: it enumerates devices and
// allocates device-side staging regions. Implementations either succeed or
// return an error; this package never interprets driver status beyond that.
type Driver interface {
	// NumDevices returns the number of accelerator devices visible to the
	// session.
	NumDevices() (int, error)

	// Device returns the nth device.
	Device(n int) (Device, error)

	// NextAvailableDevice returns some device not currently held open by
	// another client.
	NextAvailableDevice() (Device, error)

	// AllocateInputRegion allocates a device-side staging region able to
	// hold depth concurrent input payloads of the given program.
	AllocateInputRegion(pkg *iop.IOP, programIndex, depth int) (Region, error)

	// AllocateOutputRegion is the output-side counterpart of
	// AllocateInputRegion.
	AllocateOutputRegion(pkg *iop.IOP, programIndex, depth int) (Region, error)

	// Close terminates the session. Regions and devices obtained from it
	// must not be used afterwards.
	Close() error
}

// Device is one accelerator device.
type Device interface {
	Open() error
	IsOpen() (bool, error)
	Close() error

	// Reset returns the device to a known state.
	Reset() error

	// ClearMemory zeroes the device memory.
	ClearMemory() error

	// NumaNode returns the NUMA node the device is attached to, or -1 when
	// unknown.
	NumaNode() (int, error)

	// LoadProgram installs the instructions of the given program of pkg
	// onto the device. keepEntryPoints asks the device to retain entry
	// point programs across invocations.
	LoadProgram(pkg *iop.IOP, programIndex int, keepEntryPoints bool) error

	// Invoke submits one invocation reading the inputSlot-th payload of
	// input and writing the outputSlot-th payload of output. It returns a
	// Completion to wait on.
	Invoke(input Region, inputSlot int, output Region, outputSlot int) (Completion, error)
}

// Region is a device-side staging region holding depth payloads of a fixed
// size. Bytes exposes the host-visible bytes of one payload; the layout
// within a payload is owned by the program's tensor layouts.
type Region interface {
	// Bytes returns the host-visible bytes of the nth payload.
	Bytes(n int) ([]byte, error)

	// Size returns the size in bytes of one payload.
	Size() int

	// Free releases the region. Bytes obtained earlier must not be used
	// afterwards. Free is idempotent.
	Free() error
}

// Completion is the token of one submitted invocation.
type Completion interface {
	// Wait blocks until the invocation completes or timeout elapses. On
	// expiry it returns an error wrapping ErrTimeout.
	Wait(timeout time.Duration) error
}

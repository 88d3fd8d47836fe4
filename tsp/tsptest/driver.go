// Package tsptest provides a deterministic, in-process implementation of the
// tsp driver interfaces, for tests and examples.
//
// Staging regions are plain host byte slices, dispatch runs a registered
// per-program Handler synchronously, and waits never sleep: the simulated
// completion latency is compared against the wait timeout, so timeout
// scenarios run instantly. Failure injection (allocation, dispatch, wait)
// and per-device counters cover the error paths a real driver would
// exercise.
//
// Like the real driver boundary, the simulator assumes single-threaded use.
package tsptest

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gomlx/gotsp/iop"
	"github.com/gomlx/gotsp/tsp"
)

// Handler computes the result of one invocation of a program: it reads the
// device-layout input payload and writes the device-layout output payload.
type Handler func(program string, input, output []byte) error

// Driver is a simulated driver session.
type Driver struct {
	devices        []*Device
	handlers       map[string]Handler
	failAllocErr   error
	failAllocAfter int
	liveRegions    int
	closed         bool
}

var _ tsp.Driver = (*Driver)(nil)

// NewDriver creates a simulated session with numDevices devices, all
// initially closed and program-less.
func NewDriver(numDevices int) *Driver {
	d := &Driver{handlers: make(map[string]Handler)}
	for i := 0; i < numDevices; i++ {
		d.devices = append(d.devices, &Device{driver: d, index: i})
	}
	return d
}

// SetHandler registers the computation run when a program with the given
// name is invoked. Programs without a handler copy their input payload to
// the output payload, truncated or zero-padded.
func (d *Driver) SetHandler(program string, handler Handler) {
	d.handlers[program] = handler
}

// FailNextAllocation makes the next region allocation fail with err.
func (d *Driver) FailNextAllocation(err error) {
	d.FailAllocation(0, err)
}

// FailAllocation makes the region allocation coming after the next `after`
// successful ones fail with err.
func (d *Driver) FailAllocation(after int, err error) {
	d.failAllocErr = err
	d.failAllocAfter = after
}

// LiveRegions returns the number of allocated, not yet freed regions.
func (d *Driver) LiveRegions() int { return d.liveRegions }

// NumDevices implements tsp.Driver.
func (d *Driver) NumDevices() (int, error) {
	if d.closed {
		return 0, errors.Wrap(tsp.ErrDriver, "session is closed")
	}
	return len(d.devices), nil
}

// Device implements tsp.Driver.
func (d *Driver) Device(n int) (tsp.Device, error) {
	if d.closed {
		return nil, errors.Wrap(tsp.ErrDriver, "session is closed")
	}
	if n < 0 || n >= len(d.devices) {
		return nil, errors.Wrapf(tsp.ErrDriver, "device %d out of range, session has %d devices",
			n, len(d.devices))
	}
	return d.devices[n], nil
}

// NextAvailableDevice implements tsp.Driver: it returns the first device not
// currently open.
func (d *Driver) NextAvailableDevice() (tsp.Device, error) {
	if d.closed {
		return nil, errors.Wrap(tsp.ErrDriver, "session is closed")
	}
	for _, dev := range d.devices {
		if !dev.open {
			return dev, nil
		}
	}
	return nil, errors.Wrap(tsp.ErrDriver, "no available device")
}

// AllocateInputRegion implements tsp.Driver.
func (d *Driver) AllocateInputRegion(pkg *iop.IOP, programIndex, depth int) (tsp.Region, error) {
	return d.allocate(pkg, programIndex, depth, true)
}

// AllocateOutputRegion implements tsp.Driver.
func (d *Driver) AllocateOutputRegion(pkg *iop.IOP, programIndex, depth int) (tsp.Region, error) {
	return d.allocate(pkg, programIndex, depth, false)
}

func (d *Driver) allocate(pkg *iop.IOP, programIndex, depth int, input bool) (tsp.Region, error) {
	if d.closed {
		return nil, errors.Wrap(tsp.ErrDriver, "session is closed")
	}
	if d.failAllocErr != nil {
		if d.failAllocAfter > 0 {
			d.failAllocAfter--
		} else {
			err := d.failAllocErr
			d.failAllocErr = nil
			return nil, err
		}
	}
	program, err := pkg.Program(programIndex)
	if err != nil {
		return nil, err
	}
	if depth < 1 {
		return nil, errors.Errorf("allocation depth must be >= 1, got %d", depth)
	}
	payloadSize := program.InputSize()
	if !input {
		payloadSize = program.OutputSize()
	}
	d.liveRegions++
	return &region{
		driver:      d,
		payloadSize: payloadSize,
		depth:       depth,
		data:        make([]byte, payloadSize*depth),
	}, nil
}

// Close implements tsp.Driver.
func (d *Driver) Close() error {
	d.closed = true
	return nil
}

type region struct {
	driver      *Driver
	payloadSize int
	depth       int
	data        []byte
	freed       bool
}

var _ tsp.Region = (*region)(nil)

func (rg *region) Bytes(n int) ([]byte, error) {
	if rg.freed {
		return nil, errors.Wrap(tsp.ErrDriver, "region already freed")
	}
	if n < 0 || n >= rg.depth {
		return nil, errors.Wrapf(tsp.ErrDriver, "payload %d out of range, region has depth %d", n, rg.depth)
	}
	return rg.data[n*rg.payloadSize : (n+1)*rg.payloadSize], nil
}

func (rg *region) Size() int { return rg.payloadSize }

func (rg *region) Free() error {
	if rg.freed {
		return nil
	}
	rg.freed = true
	rg.driver.liveRegions--
	return nil
}

// Device is one simulated accelerator device.
type Device struct {
	driver    *Driver
	index     int
	open      bool
	numResets int
	numClears int

	loadedPkg       *iop.IOP
	loadedIndex     int
	loadedName      string
	keepEntryPoints bool

	failNextDispatch error
	failNextWait     error
	waitLatency      time.Duration

	numDispatches int
	numWaits      int
}

var _ tsp.Device = (*Device)(nil)

// FailNextDispatch makes the next Invoke fail with err.
func (dev *Device) FailNextDispatch(err error) { dev.failNextDispatch = err }

// FailNextWait makes the next Completion.Wait fail with err.
func (dev *Device) FailNextWait(err error) { dev.failNextWait = err }

// SetWaitLatency sets the simulated completion latency. A wait whose timeout
// is below the latency fails with tsp.ErrTimeout; no real time passes either
// way.
func (dev *Device) SetWaitLatency(latency time.Duration) { dev.waitLatency = latency }

// NumDispatches returns how many invocations were submitted to the device.
func (dev *Device) NumDispatches() int { return dev.numDispatches }

// NumWaits returns how many completion waits ran against the device.
func (dev *Device) NumWaits() int { return dev.numWaits }

// NumResets returns how many times the device was reset.
func (dev *Device) NumResets() int { return dev.numResets }

// LoadedProgram returns the name of the loaded program, or "".
func (dev *Device) LoadedProgram() string { return dev.loadedName }

// Open implements tsp.Device.
func (dev *Device) Open() error {
	if dev.driver.closed {
		return errors.Wrap(tsp.ErrDriver, "session is closed")
	}
	dev.open = true
	return nil
}

// IsOpen implements tsp.Device.
func (dev *Device) IsOpen() (bool, error) { return dev.open, nil }

// Close implements tsp.Device.
func (dev *Device) Close() error {
	dev.open = false
	return nil
}

// Reset implements tsp.Device.
func (dev *Device) Reset() error {
	if !dev.open {
		return errors.Wrapf(tsp.ErrDriver, "device %d is not open", dev.index)
	}
	dev.numResets++
	dev.loadedPkg = nil
	dev.loadedName = ""
	return nil
}

// ClearMemory implements tsp.Device.
func (dev *Device) ClearMemory() error {
	if !dev.open {
		return errors.Wrapf(tsp.ErrDriver, "device %d is not open", dev.index)
	}
	dev.numClears++
	return nil
}

// NumaNode implements tsp.Device. Simulated devices alternate between two
// nodes.
func (dev *Device) NumaNode() (int, error) { return dev.index % 2, nil }

// LoadProgram implements tsp.Device.
func (dev *Device) LoadProgram(pkg *iop.IOP, programIndex int, keepEntryPoints bool) error {
	if !dev.open {
		return errors.Wrapf(tsp.ErrDriver, "device %d is not open", dev.index)
	}
	program, err := pkg.Program(programIndex)
	if err != nil {
		return err
	}
	dev.loadedPkg = pkg
	dev.loadedIndex = programIndex
	dev.loadedName = program.Name()
	dev.keepEntryPoints = keepEntryPoints
	return nil
}

// Invoke implements tsp.Device: it runs the program's Handler synchronously
// and returns a completion that waits, honoring the simulated latency.
func (dev *Device) Invoke(input tsp.Region, inputSlot int, output tsp.Region, outputSlot int) (tsp.Completion, error) {
	if !dev.open {
		return nil, errors.Wrapf(tsp.ErrDriver, "device %d is not open", dev.index)
	}
	if dev.loadedPkg == nil {
		return nil, errors.Wrapf(tsp.ErrDriver, "device %d has no program loaded", dev.index)
	}
	if err := dev.failNextDispatch; err != nil {
		dev.failNextDispatch = nil
		return nil, err
	}
	inputBytes, err := input.Bytes(inputSlot)
	if err != nil {
		return nil, err
	}
	outputBytes, err := output.Bytes(outputSlot)
	if err != nil {
		return nil, err
	}
	dev.numDispatches++
	handler := dev.driver.handlers[dev.loadedName]
	if handler == nil {
		handler = copyThrough
	}
	if err := handler(dev.loadedName, inputBytes, outputBytes); err != nil {
		return nil, err
	}
	return &completion{
		id:      uuid.New(),
		device:  dev,
		latency: dev.waitLatency,
	}, nil
}

// copyThrough is the default Handler: the input payload copied over the
// output payload, truncated or zero-padded.
func copyThrough(_ string, input, output []byte) error {
	n := copy(output, input)
	for i := n; i < len(output); i++ {
		output[i] = 0
	}
	return nil
}

type completion struct {
	id      uuid.UUID
	device  *Device
	latency time.Duration
}

var _ tsp.Completion = (*completion)(nil)

func (c *completion) Wait(timeout time.Duration) error {
	c.device.numWaits++
	if err := c.device.failNextWait; err != nil {
		c.device.failNextWait = nil
		return err
	}
	if c.latency > timeout {
		return errors.Wrapf(tsp.ErrTimeout, "completion %s not done after %s (simulated latency %s)",
			c.id, timeout, c.latency)
	}
	return nil
}

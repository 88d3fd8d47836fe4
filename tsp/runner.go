package tsp

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/gotsp/iop"
)

// InvokeTimeout bounds the wait for one invocation to complete. Expiry is a
// hard failure (ErrTimeout), not a resumable state.
const InvokeTimeout = 30 * time.Second

// Runner drives single synchronous invocations of one entry point of a
// program package.
//
// A Runner allocates one device-side input and one output staging region at
// construction, sized for the chosen program at depth 1. Callers then bind
// one host buffer per input and output tensor slot with AddInputBuffer and
// AddOutputBuffer, and call Invoke. Bindings survive an invocation, so a
// Runner can be re-invoked, with the same or replaced bindings, reusing the
// same staging regions.
//
// A Runner is single-threaded by contract: its staging regions must never be
// touched by more than one invocation at a time. Concurrent callers need one
// Runner each.
type Runner struct {
	pkg             *iop.IOP
	programIndex    int
	entryPointIndex int
	programName     string
	entryPoint      *iop.EntryPoint

	// Aggregate device-side staging sizes of the program.
	tspInputSize, tspOutputSize int

	inputRegion, outputRegion Region

	// Host buffers bound per slot, nil while unbound.
	inputBuffers, outputBuffers [][]byte

	timeout time.Duration
}

// NewRunner creates a Runner for the given entry point of the given program
// of pkg, allocating its staging regions from driver. Allocation failures
// wrap ErrAllocation and leave nothing to release.
func NewRunner(driver Driver, pkg *iop.IOP, programIndex, entryPointIndex int) (*Runner, error) {
	program, err := pkg.Program(programIndex)
	if err != nil {
		return nil, err
	}
	entryPoint, err := program.EntryPoint(entryPointIndex)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		pkg:             pkg,
		programIndex:    programIndex,
		entryPointIndex: entryPointIndex,
		programName:     program.Name(),
		entryPoint:      entryPoint,
		tspInputSize:    program.InputSize(),
		tspOutputSize:   program.OutputSize(),
		inputBuffers:    make([][]byte, entryPoint.Input().NumTensorLayouts()),
		outputBuffers:   make([][]byte, entryPoint.Output().NumTensorLayouts()),
		timeout:         InvokeTimeout,
	}
	r.inputRegion, err = driver.AllocateInputRegion(pkg, programIndex, 1)
	if err != nil {
		return nil, errors.Wrapf(ErrAllocation, "allocating input staging region for program %q: %v",
			program.Name(), err)
	}
	r.outputRegion, err = driver.AllocateOutputRegion(pkg, programIndex, 1)
	if err != nil {
		freeOrLog(r.inputRegion, "input staging region")
		return nil, errors.Wrapf(ErrAllocation, "allocating output staging region for program %q: %v",
			program.Name(), err)
	}
	return r, nil
}

// EntryPoint returns the entry point this runner invokes.
func (r *Runner) EntryPoint() *iop.EntryPoint { return r.entryPoint }

// AddInputBuffer binds the caller-owned host buffer to input slot index.
// len(buffer) must equal the slot layout's HostSize, otherwise it fails with
// ErrSizeMismatch and no state changes. Rebinding a slot replaces the
// previous binding; no bytes are copied until Invoke.
func (r *Runner) AddInputBuffer(buffer []byte, index int) error {
	layout, err := r.entryPoint.Input().TensorLayout(index)
	if err != nil {
		return err
	}
	if len(buffer) != layout.HostSize() {
		return errors.Wrapf(iop.ErrSizeMismatch, "input buffer for slot %d (%q) is %d bytes, expected %d",
			index, layout.Name(), len(buffer), layout.HostSize())
	}
	r.inputBuffers[index] = buffer
	return nil
}

// AddOutputBuffer binds the caller-owned host buffer to output slot index.
// Same contract as AddInputBuffer.
func (r *Runner) AddOutputBuffer(buffer []byte, index int) error {
	layout, err := r.entryPoint.Output().TensorLayout(index)
	if err != nil {
		return err
	}
	if len(buffer) != layout.HostSize() {
		return errors.Wrapf(iop.ErrSizeMismatch, "output buffer for slot %d (%q) is %d bytes, expected %d",
			index, layout.Name(), len(buffer), layout.HostSize())
	}
	r.outputBuffers[index] = buffer
	return nil
}

// Invoke runs one synchronous invocation on device: it converts every bound
// input buffer into the shared input staging region, dispatches, blocks
// until completion (bounded by InvokeTimeout) and converts the output
// staging region into the bound output buffers. The four phases are strictly
// sequential. On a dispatch failure or timeout, no output conversion is
// attempted and the runner remains usable: bindings are kept and Invoke may
// be called again.
func (r *Runner) Invoke(device Device) error {
	for i, buffer := range r.inputBuffers {
		if buffer == nil {
			return errors.Errorf("input slot %d has no buffer bound", i)
		}
	}
	for i, buffer := range r.outputBuffers {
		if buffer == nil {
			return errors.Errorf("output slot %d has no buffer bound", i)
		}
	}

	// Transform the caller's input data into the layout expected by the
	// device.
	staging, err := r.inputRegion.Bytes(0)
	if err != nil {
		return errors.Wrapf(ErrDispatch, "reading input staging region: %v", err)
	}
	for i, layout := range r.entryPoint.Input().TensorLayouts() {
		if err := layout.FromHost(r.inputBuffers[i], staging); err != nil {
			return err
		}
	}
	klog.V(2).Infof("invoke %q/%q: %d input tensor(s) staged (%d bytes)",
		r.programName, r.entryPoint.Name(), len(r.inputBuffers), r.tspInputSize)

	completion, err := device.Invoke(r.inputRegion, 0, r.outputRegion, 0)
	if err != nil {
		return errors.Wrapf(ErrDispatch, "invoking entry point %q: %v", r.entryPoint.Name(), err)
	}
	if err := completion.Wait(r.timeout); err != nil {
		if errors.Is(err, ErrTimeout) {
			return errors.WithMessagef(err, "entry point %q", r.entryPoint.Name())
		}
		return errors.Wrapf(ErrDispatch, "waiting for entry point %q: %v", r.entryPoint.Name(), err)
	}

	// Transform the device's output data into the layout expected by the
	// caller.
	staging, err = r.outputRegion.Bytes(0)
	if err != nil {
		return errors.Wrapf(ErrDispatch, "reading output staging region: %v", err)
	}
	// The staging region is sized to the program aggregate, which may exceed
	// the entry point's descriptor span; conversion only reads the span.
	staging = staging[:r.entryPoint.Output().Size()]
	for i, layout := range r.entryPoint.Output().TensorLayouts() {
		if err := layout.ToHost(staging, r.outputBuffers[i]); err != nil {
			return err
		}
	}
	klog.V(2).Infof("invoke %q/%q: %d output tensor(s) converted (%d bytes)",
		r.programName, r.entryPoint.Name(), len(r.outputBuffers), r.tspOutputSize)
	return nil
}

// Free releases the staging regions. The Runner must not be invoked
// afterwards. Free is idempotent.
func (r *Runner) Free() error {
	var firstErr error
	if r.inputRegion != nil {
		firstErr = r.inputRegion.Free()
		r.inputRegion = nil
	}
	if r.outputRegion != nil {
		err := r.outputRegion.Free()
		if firstErr == nil {
			firstErr = err
		}
		r.outputRegion = nil
	}
	return firstErr
}

// FreeOrLog releases the staging regions, logging instead of returning
// teardown failures. Meant for defer.
func (r *Runner) FreeOrLog() {
	if err := r.Free(); err != nil {
		klog.Errorf("Runner.Free failed: %v", err)
	}
}

func freeOrLog(region Region, what string) {
	if err := region.Free(); err != nil {
		klog.Errorf("failed to free %s: %v", what, err)
	}
}

package tsptest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gomlx/gotsp/dtypes"
	"github.com/gomlx/gotsp/iop"
	"github.com/gomlx/gotsp/tsp"
)

func testPackage(t *testing.T) *iop.IOP {
	b := iop.NewBuilder()
	ep := b.AddProgram("noop").AddEntryPoint("main")
	ep.Input().AddContiguous("x", dtypes.Uint8, []int{8}, 0)
	ep.Output().AddContiguous("y", dtypes.Uint8, []int{8}, 0)
	data, err := b.Encode()
	require.NoError(t, err)
	pkg, err := iop.Decode(data)
	require.NoError(t, err)
	return pkg
}

func TestDriver_Devices(t *testing.T) {
	driver := NewDriver(2)
	n, err := driver.NumDevices()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	dev0, err := driver.NextAvailableDevice()
	require.NoError(t, err)
	require.NoError(t, dev0.Open())
	open, err := dev0.IsOpen()
	require.NoError(t, err)
	require.True(t, open)

	// The open device is no longer available.
	dev1, err := driver.NextAvailableDevice()
	require.NoError(t, err)
	require.NotSame(t, dev0, dev1)
	require.NoError(t, dev1.Open())
	_, err = driver.NextAvailableDevice()
	require.ErrorIs(t, err, tsp.ErrDriver)

	node, err := dev1.NumaNode()
	require.NoError(t, err)
	require.Equal(t, 1, node)

	_, err = driver.Device(2)
	require.ErrorIs(t, err, tsp.ErrDriver)

	require.NoError(t, driver.Close())
	_, err = driver.NumDevices()
	require.ErrorIs(t, err, tsp.ErrDriver)
}

func TestDevice_Lifecycle(t *testing.T) {
	pkg := testPackage(t)
	driver := NewDriver(1)
	devIface, err := driver.Device(0)
	require.NoError(t, err)
	device := devIface.(*Device)

	// Everything but open/close requires an open device.
	require.ErrorIs(t, device.Reset(), tsp.ErrDriver)
	require.ErrorIs(t, device.ClearMemory(), tsp.ErrDriver)
	require.ErrorIs(t, device.LoadProgram(pkg, 0, false), tsp.ErrDriver)

	require.NoError(t, device.Open())
	require.NoError(t, device.LoadProgram(pkg, 0, true))
	require.Equal(t, "noop", device.LoadedProgram())

	// Reset drops the loaded program.
	require.NoError(t, device.Reset())
	require.Equal(t, "", device.LoadedProgram())
	require.Equal(t, 1, device.NumResets())

	require.Error(t, device.LoadProgram(pkg, 3, false), "program index out of range")
	require.NoError(t, device.Close())
}

func TestRegion_Bounds(t *testing.T) {
	pkg := testPackage(t)
	driver := NewDriver(1)

	region, err := driver.AllocateInputRegion(pkg, 0, 2)
	require.NoError(t, err)
	require.Equal(t, 8, region.Size())
	require.Equal(t, 1, driver.LiveRegions())

	payload0, err := region.Bytes(0)
	require.NoError(t, err)
	require.Len(t, payload0, 8)
	payload1, err := region.Bytes(1)
	require.NoError(t, err)
	copy(payload1, "12345678")
	require.Equal(t, make([]byte, 8), payload0, "payloads must not overlap")

	_, err = region.Bytes(2)
	require.ErrorIs(t, err, tsp.ErrDriver)
	_, err = region.Bytes(-1)
	require.ErrorIs(t, err, tsp.ErrDriver)

	require.NoError(t, region.Free())
	require.NoError(t, region.Free(), "Free is idempotent")
	require.Equal(t, 0, driver.LiveRegions())
	_, err = region.Bytes(0)
	require.ErrorIs(t, err, tsp.ErrDriver)

	_, err = driver.AllocateOutputRegion(pkg, 0, 0)
	require.Error(t, err, "depth must be >= 1")
}

func TestDefaultHandler_CopyThrough(t *testing.T) {
	pkg := testPackage(t)
	driver := NewDriver(1)
	devIface, err := driver.Device(0)
	require.NoError(t, err)
	device := devIface.(*Device)
	require.NoError(t, device.Open())
	require.NoError(t, device.LoadProgram(pkg, 0, false))

	input, err := driver.AllocateInputRegion(pkg, 0, 1)
	require.NoError(t, err)
	output, err := driver.AllocateOutputRegion(pkg, 0, 1)
	require.NoError(t, err)

	inputBytes, err := input.Bytes(0)
	require.NoError(t, err)
	copy(inputBytes, "abcdefgh")

	completion, err := device.Invoke(input, 0, output, 0)
	require.NoError(t, err)
	require.NoError(t, completion.Wait(time.Second))

	outputBytes, err := output.Bytes(0)
	require.NoError(t, err)
	require.Equal(t, []byte("abcdefgh"), outputBytes)
}

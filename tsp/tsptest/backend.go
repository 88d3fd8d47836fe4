package tsptest

import (
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/gomlx/gotsp/tsp"
)

// NumDevicesEnv is the environment variable read by the "sim" backend
// factory to size the simulated session. Default is 2 devices.
const NumDevicesEnv = "GOTSP_SIM_DEVICES"

func init() {
	tsp.RegisterBackend("sim", func() (tsp.Driver, error) {
		numDevices := 2
		if value := os.Getenv(NumDevicesEnv); value != "" {
			var err error
			numDevices, err = strconv.Atoi(value)
			if err != nil || numDevices < 1 {
				return nil, errors.Wrapf(tsp.ErrDriver, "invalid %s=%q, expected a positive device count", NumDevicesEnv, value)
			}
		}
		return NewDriver(numDevices), nil
	})
}

package tsp

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// BackendFactory creates a driver session for one backend. Factories are
// called at most once per backend: GetBackend caches the driver it returns.
type BackendFactory func() (Driver, error)

var (
	// Backends maps backend names (uppercase) to their driver factories.
	//
	// Vendor driver packages and the simulator register themselves here
	// during initialization, but not after it.
	Backends = map[string]BackendFactory{}

	// BackendAliases maps alternate backend names (uppercase) to the
	// corresponding canonical backend name (also uppercase).
	BackendAliases = map[string]string{
		"SIMULATOR": "SIM",
	}

	// loadedBackends caches the drivers already created. Protected by muBackends.
	loadedBackends = make(map[string]Driver)
	muBackends     sync.Mutex
)

// RegisterBackend adds a backend factory under the given name. It is meant to
// be called from the init function of driver packages.
func RegisterBackend(name string, factory BackendFactory) {
	muBackends.Lock()
	defer muBackends.Unlock()
	Backends[strings.ToUpper(name)] = factory
}

// GetBackend returns the driver for the given backend name, creating it on
// first use.
//
// Drivers are singletons per backend and cached (GetBackend will return the
// same driver if called with the same backend or its aliases). The name is
// matched case-insensitively.
//
// It uses a mutex to serialize (make it safe) calls from different goroutines.
func GetBackend(name string) (Driver, error) {
	muBackends.Lock()
	defer muBackends.Unlock()

	canonical := strings.ToUpper(name)
	if alias, ok := BackendAliases[canonical]; ok {
		canonical = alias
	}
	if driver, found := loadedBackends[canonical]; found {
		return driver, nil
	}

	factory, ok := Backends[canonical]
	if !ok {
		return nil, errors.Wrapf(ErrDriver, "unknown backend %q (canonical form %q)", name, canonical)
	}
	driver, err := factory()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create driver for backend %q", name)
	}
	loadedBackends[canonical] = driver
	return driver, nil
}

// AvailableBackends returns the names of the registered backends. It doesn't
// create their drivers, just lists them.
func AvailableBackends() []string {
	muBackends.Lock()
	defer muBackends.Unlock()

	names := make([]string, 0, len(Backends))
	for name := range Backends {
		names = append(names, name)
	}
	return names
}

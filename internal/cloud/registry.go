package cloud

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor creates an Adapter from backend-specific settings.
// Implementations register themselves with the registry using Register().
type Constructor func(settings Settings) (Adapter, error)

// registry maps backends to their constructors
var (
	registry      = make(map[Backend]Constructor)
	registryMutex sync.RWMutex
)

// Register registers a backend constructor.
// This is called from init() functions in backend packages.
//
// Example:
//
//	func init() {
//	    cloud.Register(cloud.BackendDropbox, New)
//	}
func Register(b Backend, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("cloud: Register constructor is nil for backend %s", b))
	}

	if _, exists := registry[b]; exists {
		panic(fmt.Sprintf("cloud: Register called twice for backend %s", b))
	}

	registry[b] = constructor
}

// New creates the adapter registered for b.
func New(b Backend, settings Settings) (Adapter, error) {
	registryMutex.RLock()
	constructor := registry[b]
	registryMutex.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("%w: %s is not registered", ErrUnknownBackend, b)
	}
	if settings == nil {
		settings = Settings{}
	}

	adapter, err := constructor(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", b, err)
	}
	return adapter, nil
}

// IsRegistered returns true if a constructor is registered for the given backend.
func IsRegistered(b Backend) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, exists := registry[b]
	return exists
}

// RegisteredBackends returns all registered backends in name order.
func RegisteredBackends() []Backend {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	backends := make([]Backend, 0, len(registry))
	for b := range registry {
		backends = append(backends, b)
	}
	sort.Slice(backends, func(i, j int) bool { return backends[i] < backends[j] })
	return backends
}

// UnregisterAll clears all registered constructors.
// This is primarily useful for testing.
func UnregisterAll() {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry = make(map[Backend]Constructor)
}

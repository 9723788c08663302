package component

import (
	"sync"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/errors"
)

// Factory creates a component variant from startup options.
type Factory func(opts Options) (Component, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[gpubridge.ComponentType]Factory)

	// Priority order for default selection (first constructible wins).
	// Accelerated and streaming need a native renderer; the software
	// rasterizer always works and is the fallback.
	priority = []gpubridge.ComponentType{
		gpubridge.ComponentAccel,
		gpubridge.ComponentStream,
		gpubridge.ComponentPassthrough,
		gpubridge.ComponentSoftware2D,
	}
)

// Register registers a factory for the component type. Called from init()
// in each variant file; a later registration replaces the earlier one.
func Register(t gpubridge.ComponentType, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[t] = f
}

// Unregister removes a factory. Useful for testing.
func Unregister(t gpubridge.ComponentType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, t)
}

// Available returns the registered component types.
func Available() []gpubridge.ComponentType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]gpubridge.ComponentType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	return types
}

// IsRegistered checks whether the component type has a factory.
func IsRegistered(t gpubridge.ComponentType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[t]
	return ok
}

// New constructs the named variant.
func New(t gpubridge.ComponentType, opts Options) (Component, error) {
	registryMu.RLock()
	f, ok := factories[t]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.InvalidComponent(t.String())
	}
	return f(opts)
}

// Default constructs the highest-priority variant the options can satisfy.
func Default(opts Options) (Component, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, t := range priority {
		f, ok := factories[t]
		if !ok {
			continue
		}
		if c, err := f(opts); err == nil {
			return c, nil
		}
	}
	return nil, errors.InvalidComponent("no constructible component")
}

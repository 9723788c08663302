package native

import (
	"sync/atomic"

	"go.uber.org/zap"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/errors"
)

// State owns one initialized renderer for the lifetime of the process. It
// replaces the global-instance-plus-cookie arrangement of the C API with an
// explicit value passed by reference to every adapter.
//
// The completion callbacks handed to the backend are wrapped at the boundary:
// a panic escaping a handler leaves the backend in unknown state, so the
// process is terminated deliberately instead of unwinding further.
type State struct {
	r    Renderer
	torn atomic.Bool
}

// NewState initializes the renderer and returns the process-scoped state.
// Re-initializing a renderer is the backend's concern; the restore flow
// legitimately builds a second State over a live backend.
func NewState(r Renderer, cfg InitConfig) (*State, error) {
	cfg.FenceCallback = guardFence(cfg.FenceCallback)
	if cfg.DebugCallback != nil {
		cfg.DebugCallback = guardDebug(cfg.DebugCallback)
	}

	if ret := r.Init(cfg); ret != 0 {
		return nil, errors.Component(ret)
	}
	return &State{r: r}, nil
}

// Renderer exposes the call surface. Callers must not retain the renderer
// past Teardown.
func (s *State) Renderer() Renderer {
	return s.r
}

// Teardown shuts the renderer down. Safe to call more than once; only the
// first call reaches the backend.
func (s *State) Teardown() {
	if s.torn.CompareAndSwap(false, true) {
		s.r.Teardown()
	}
}

func guardFence(h func(gpubridge.Fence)) func(gpubridge.Fence) {
	return func(f gpubridge.Fence) {
		defer rescue("fence callback")
		if h != nil {
			h(f)
		}
	}
}

func guardDebug(h func(gpubridge.Debug)) func(gpubridge.Debug) {
	return func(d gpubridge.Debug) {
		defer rescue("debug callback")
		h(d)
	}
}

// rescue converts a panic escaping a backend callback into deliberate
// process termination. Continuing with a backend in unknown state is unsafe.
func rescue(where string) {
	if r := recover(); r != nil {
		Logger().Fatal("panic escaped backend callback",
			zap.String("boundary", where),
			zap.Any("panic", r))
	}
}

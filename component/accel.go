package component

import (
	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/native"
)

func init() {
	Register(gpubridge.ComponentAccel, func(opts Options) (Component, error) {
		return NewAccel(opts)
	})
}

// Accel is the accelerated renderer variant: guest GL/Vulkan command
// streams are decoded and replayed against the host driver through the
// native call surface.
type Accel struct {
	*renderAdapter
}

// NewAccel initializes the accelerated renderer.
func NewAccel(opts Options) (*Accel, error) {
	a, err := newRenderAdapter(gpubridge.ComponentAccel, opts, native.InitConfig{
		DisplayWidth:  opts.DisplayWidth,
		DisplayHeight: opts.DisplayHeight,
		RendererFlags: uint64(uint32(opts.AccelFlags)),
	})
	if err != nil {
		return nil, err
	}

	// The accelerated renderer reports real access rights per mapping and
	// has no fence export op.
	a.forceRWMap = false
	a.fenceExport = false

	return &Accel{renderAdapter: a}, nil
}

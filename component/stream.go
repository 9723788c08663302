package component

import (
	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/native"
)

func init() {
	Register(gpubridge.ComponentStream, func(opts Options) (Component, error) {
		return NewStream(opts)
	})
}

// Stream is the streaming renderer variant: guest API calls are forwarded
// to a host-side renderer process through the native call surface.
type Stream struct {
	*renderAdapter
}

// NewStream initializes the streaming renderer.
func NewStream(opts Options) (*Stream, error) {
	a, err := newRenderAdapter(gpubridge.ComponentStream, opts, native.InitConfig{
		DisplayWidth:  opts.DisplayWidth,
		DisplayHeight: opts.DisplayHeight,
		RendererFlags: uint64(uint32(opts.StreamFlags)),
		Features:      opts.Features,
	})
	if err != nil {
		return nil, err
	}

	// The streaming renderer validates mapped access itself and reports
	// every mapping as read-write.
	a.forceRWMap = true
	a.fenceExport = true

	return &Stream{renderAdapter: a}, nil
}

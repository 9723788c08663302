package bridge

import (
	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/component"
	"github.com/virtgfx/gpu-bridge/errors"
	"github.com/virtgfx/gpu-bridge/fence"
	"github.com/virtgfx/gpu-bridge/native"
)

// Builder assembles a Bridge. Enable at least one component variant; the
// zero builder with no enables builds a software-only bridge.
type Builder struct {
	enabled []gpubridge.ComponentType
	opts    component.Options

	defaultType   gpubridge.ComponentType
	defaultChosen bool
	handler       gpubridge.FenceHandler
	channelMode   bool
	channelBuffer int
	mapper        gpubridge.Mapper
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) enable(t gpubridge.ComponentType) *Builder {
	for _, e := range b.enabled {
		if e == t {
			return b
		}
	}
	b.enabled = append(b.enabled, t)
	return b
}

// WithSoftware2D enables the pure Go rasterizer.
func (b *Builder) WithSoftware2D() *Builder {
	return b.enable(gpubridge.ComponentSoftware2D)
}

// WithPassthrough enables the guest-memory blob variant.
func (b *Builder) WithPassthrough() *Builder {
	return b.enable(gpubridge.ComponentPassthrough)
}

// WithAccel enables the accelerated renderer over the native call surface.
func (b *Builder) WithAccel(r native.Renderer, flags gpubridge.AccelFlags) *Builder {
	b.opts.Renderer = r
	b.opts.AccelFlags = flags
	return b.enable(gpubridge.ComponentAccel)
}

// WithStream enables the streaming renderer over the native call surface.
func (b *Builder) WithStream(r native.Renderer, flags gpubridge.StreamFlags) *Builder {
	b.opts.Renderer = r
	b.opts.StreamFlags = flags
	return b.enable(gpubridge.ComponentStream)
}

// WithDefaultComponent overrides which variant serves requests that carry
// no routing information.
func (b *Builder) WithDefaultComponent(t gpubridge.ComponentType) *Builder {
	b.defaultType = t
	b.defaultChosen = true
	return b
}

// WithFenceHandler delivers completions to h.
func (b *Builder) WithFenceHandler(h gpubridge.FenceHandler) *Builder {
	b.handler = h
	b.channelMode = false
	return b
}

// WithFenceChannel delivers completions into a bounded channel instead of a
// handler; drain it through Completions.
func (b *Builder) WithFenceChannel(buffer int) *Builder {
	b.channelMode = true
	b.channelBuffer = buffer
	return b
}

// WithDebugHandler receives backend diagnostics.
func (b *Builder) WithDebugHandler(h gpubridge.DebugHandler) *Builder {
	b.opts.DebugHandler = h
	return b
}

// WithDisplay sets the host display dimensions passed to native renderers.
func (b *Builder) WithDisplay(width, height uint32) *Builder {
	b.opts.DisplayWidth = width
	b.opts.DisplayHeight = height
	return b
}

// WithAdopt sets the descriptor adopter for handles exported by native
// backends. Production wiring passes osdesc.Adopt.
func (b *Builder) WithAdopt(fn component.AdoptFunc) *Builder {
	b.opts.Adopt = fn
	return b
}

// WithShmAlloc sets the shareable memory allocator used for guest blob
// export. Production wiring passes osdesc.ShmAlloc.
func (b *Builder) WithShmAlloc(fn func(size uint64) (gpubridge.Descriptor, error)) *Builder {
	b.opts.ShmAlloc = fn
	return b
}

// WithMapper sets the host mapper used when a component has no map path of
// its own; the bridge then maps the resource's exported handle directly.
// Production wiring passes osdesc.Mapper{}.
func (b *Builder) WithMapper(m gpubridge.Mapper) *Builder {
	b.mapper = m
	return b
}

// WithFeatures forwards an opaque feature string to the streaming renderer.
func (b *Builder) WithFeatures(features string) *Builder {
	b.opts.Features = features
	return b
}

// WithSnapshotDir sets where native backends dump opaque snapshot state.
func (b *Builder) WithSnapshotDir(dir string) *Builder {
	b.opts.SnapshotDir = dir
	return b
}

// defaultPriority mirrors the component registry's selection order.
var defaultPriority = []gpubridge.ComponentType{
	gpubridge.ComponentAccel,
	gpubridge.ComponentStream,
	gpubridge.ComponentPassthrough,
	gpubridge.ComponentSoftware2D,
}

// Build constructs the components, probes the capset table, and wires fence
// delivery.
func (b *Builder) Build() (*Bridge, error) {
	enabled := b.enabled
	if len(enabled) == 0 {
		enabled = []gpubridge.ComponentType{gpubridge.ComponentSoftware2D}
	}

	var (
		mgr *fence.Manager
		ch  <-chan gpubridge.Fence
	)
	if b.channelMode {
		mgr, ch = fence.NewChannelManager(b.channelBuffer)
	} else {
		mgr = fence.NewManager(b.handler)
	}

	opts := b.opts
	opts.FenceHandler = mgr.Complete

	br := &Bridge{
		components:  make(map[gpubridge.ComponentType]component.Component, len(enabled)),
		resources:   make(map[uint32]*gpubridge.Resource),
		contexts:    make(map[uint32]component.Context),
		fences:      mgr,
		completions: ch,
		mapper:      b.mapper,
	}

	for _, t := range enabled {
		c, err := component.New(t, opts)
		if err != nil {
			br.Close()
			return nil, err
		}
		br.components[t] = c
	}

	if b.defaultChosen {
		if _, ok := br.components[b.defaultType]; !ok {
			br.Close()
			return nil, errors.InvalidComponent(b.defaultType.String() + " selected as default but not enabled")
		}
		br.defaultType = b.defaultType
	} else {
		for _, t := range defaultPriority {
			if _, ok := br.components[t]; ok {
				br.defaultType = t
				break
			}
		}
	}

	// Capset ownership goes to the first enabled component that reports a
	// non-empty set for the id.
	for _, id := range knownCapsets {
		for _, t := range defaultPriority {
			c, ok := br.components[t]
			if !ok {
				continue
			}
			version, size := c.GetCapsetInfo(id)
			if version == 0 && size == 0 {
				continue
			}
			br.capsets = append(br.capsets, capsetEntry{
				id:        id,
				component: t,
				version:   version,
				size:      size,
			})
			break
		}
	}

	return br, nil
}

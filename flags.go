package gpubridge

// Init flags understood by the accelerated renderer.
const (
	accelUseEGL          uint32 = 1 << 0
	accelThreadSync      uint32 = 1 << 1
	accelUseGLX          uint32 = 1 << 2
	accelUseSurfaceless  uint32 = 1 << 3
	accelUseGLES         uint32 = 1 << 4
	accelUseExternalBlob uint32 = 1 << 5
	accelVenus           uint32 = 1 << 6
	accelNoVirgl         uint32 = 1 << 7
	accelAsyncFenceCB    uint32 = 1 << 8
	accelRenderServer    uint32 = 1 << 9
	accelDrm             uint32 = 1 << 10
)

// AccelFlags configures the accelerated renderer at init time.
type AccelFlags uint32

// DefaultAccelFlags enables virgl with surfaceless GLES through EGL.
func DefaultAccelFlags() AccelFlags {
	return AccelFlags(0).
		UseVirgl(true).
		UseVenus(false).
		UseEGL(true).
		UseSurfaceless(true).
		UseGLES(true).
		UseRenderServer(false)
}

func (f AccelFlags) set(mask uint32, v bool) AccelFlags {
	if v {
		return AccelFlags(uint32(f) | mask)
	}
	return AccelFlags(uint32(f) &^ mask)
}

// UseVirgl enables virgl support.
func (f AccelFlags) UseVirgl(v bool) AccelFlags { return f.set(accelNoVirgl, !v) }

// UseVenus enables venus support.
func (f AccelFlags) UseVenus(v bool) AccelFlags { return f.set(accelVenus, v) }

// UseDrm enables drm native context support.
func (f AccelFlags) UseDrm(v bool) AccelFlags { return f.set(accelDrm, v) }

// UseEGL selects EGL for context creation.
func (f AccelFlags) UseEGL(v bool) AccelFlags { return f.set(accelUseEGL, v) }

// UseThreadSync runs fence synchronization on a dedicated thread.
func (f AccelFlags) UseThreadSync(v bool) AccelFlags { return f.set(accelThreadSync, v) }

// UseGLX selects GLX for context creation.
func (f AccelFlags) UseGLX(v bool) AccelFlags { return f.set(accelUseGLX, v) }

// UseSurfaceless creates contexts without surfaces.
func (f AccelFlags) UseSurfaceless(v bool) AccelFlags { return f.set(accelUseSurfaceless, v) }

// UseGLES selects GLES drivers.
func (f AccelFlags) UseGLES(v bool) AccelFlags { return f.set(accelUseGLES, v) }

// UseExternalBlob uses external memory for blob resources.
func (f AccelFlags) UseExternalBlob(v bool) AccelFlags { return f.set(accelUseExternalBlob, v) }

// UseAsyncFenceCB retires fences directly from the sync thread.
func (f AccelFlags) UseAsyncFenceCB(v bool) AccelFlags { return f.set(accelAsyncFenceCB, v) }

// UseRenderServer forwards rendering to a render server process.
func (f AccelFlags) UseRenderServer(v bool) AccelFlags { return f.set(accelRenderServer, v) }

// Init flags understood by the streaming renderer.
const (
	streamUseEGL          uint32 = 1 << 0
	streamUseGLX          uint32 = 1 << 2
	streamUseSurfaceless  uint32 = 1 << 3
	streamUseGLES         uint32 = 1 << 4
	streamUseVulkan       uint32 = 1 << 5
	streamUseExternalBlob uint32 = 1 << 6
	streamUseSystemBlob   uint32 = 1 << 7
	streamVulkanSwapchain uint32 = 1 << 8
)

// Wsi selects the window system integration of the streaming renderer.
type Wsi uint8

const (
	WsiSurfaceless Wsi = iota
	WsiVulkanSwapchain
)

// StreamFlags configures the streaming renderer at init time.
type StreamFlags uint32

func (f StreamFlags) set(mask uint32, v bool) StreamFlags {
	if v {
		return StreamFlags(uint32(f) | mask)
	}
	return StreamFlags(uint32(f) &^ mask)
}

// UseEGL selects EGL for context creation.
func (f StreamFlags) UseEGL(v bool) StreamFlags { return f.set(streamUseEGL, v) }

// UseGLX selects GLX for context creation.
func (f StreamFlags) UseGLX(v bool) StreamFlags { return f.set(streamUseGLX, v) }

// UseSurfaceless creates contexts without surfaces.
func (f StreamFlags) UseSurfaceless(v bool) StreamFlags { return f.set(streamUseSurfaceless, v) }

// UseGLES selects GLES drivers.
func (f StreamFlags) UseGLES(v bool) StreamFlags { return f.set(streamUseGLES, v) }

// UseVulkan enables Vulkan support.
func (f StreamFlags) UseVulkan(v bool) StreamFlags { return f.set(streamUseVulkan, v) }

// UseExternalBlob uses external memory for blob resources.
func (f StreamFlags) UseExternalBlob(v bool) StreamFlags { return f.set(streamUseExternalBlob, v) }

// UseSystemBlob uses system memory for blob resources.
func (f StreamFlags) UseSystemBlob(v bool) StreamFlags { return f.set(streamUseSystemBlob, v) }

// SetWsi selects how the host window is driven.
func (f StreamFlags) SetWsi(w Wsi) StreamFlags {
	return f.set(streamVulkanSwapchain, w == WsiVulkanSwapchain)
}

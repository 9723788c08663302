package native

import (
	gpubridge "github.com/virtgfx/gpu-bridge"
)

// Box3D is the transfer region box crossing the call surface.
type Box3D struct {
	X uint32
	Y uint32
	Z uint32
	W uint32
	H uint32
	D uint32
}

// BoxFromTransfer extracts the spatial box of a transfer region.
func BoxFromTransfer(t gpubridge.Transfer3D) Box3D {
	return Box3D{X: t.X, Y: t.Y, Z: t.Z, W: t.W, H: t.H, D: t.D}
}

// ResourceCreateArgs mirrors the backend resource creation argument block.
type ResourceCreateArgs struct {
	Handle    uint32
	Target    uint32
	Format    uint32
	Bind      uint32
	Width     uint32
	Height    uint32
	Depth     uint32
	ArraySize uint32
	LastLevel uint32
	NrSamples uint32
	Flags     uint32
}

// RawHandle is an OS handle crossing the call surface as a plain integer.
// Ownership transfers with the struct: a RawHandle returned by a successful
// backend call is owned by the caller and must be adopted or closed.
type RawHandle struct {
	OSHandle   int64
	HandleType uint32
}

// Command is one guest command buffer submission.
type Command struct {
	CtxID    uint32
	Cmd      []byte
	FenceIDs []uint64
}

// VulkanInfoOut is the backend-reported device identity of a blob.
type VulkanInfoOut struct {
	MemoryIndex uint32
	DeviceUUID  [16]byte
	DriverUUID  [16]byte
}

// Info3DOut is the backend import metadata for an image layout.
type Info3DOut struct {
	Width     uint32
	Height    uint32
	DrmFourcc uint32
	Strides   [4]uint32
	Offsets   [4]uint32
	Modifier  uint64
}

// ImportData carries exactly one metadata kind alongside an imported handle.
type ImportData struct {
	Flags      uint32
	Info3D     Info3DOut
	InfoVulkan VulkanInfoOut
}

// InitConfig is the Go rendition of the backend init parameter list.
type InitConfig struct {
	DisplayWidth  uint32
	DisplayHeight uint32
	RendererFlags uint64
	Features      string

	// FenceCallback is invoked by the backend on fence completion, possibly
	// from a backend-owned thread.
	FenceCallback func(gpubridge.Fence)

	// DebugCallback receives backend diagnostics when non-nil.
	DebugCallback func(gpubridge.Debug)
}

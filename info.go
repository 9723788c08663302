package gpubridge

import "github.com/gogpu/gputypes"

// Info2D is the host-side metadata of a software 2D resource.
type Info2D struct {
	Width  uint32                 `json:"width"`
	Height uint32                 `json:"height"`
	Format gputypes.TextureFormat `json:"format"`
}

// Info3D is the metadata associated with a swapchain, video or camera image.
type Info3D struct {
	Width     uint32    `json:"width"`
	Height    uint32    `json:"height"`
	DrmFourcc uint32    `json:"drm_fourcc"`
	Strides   [4]uint32 `json:"strides"`
	Offsets   [4]uint32 `json:"offsets"`
	Modifier  uint64    `json:"modifier"`

	// GuestCPUMappable reports whether the guest CPU can access the buffer.
	GuestCPUMappable bool `json:"guest_cpu_mappable"`
}

// DeviceID uniquely identifies a physical device and driver pair.
type DeviceID struct {
	DeviceUUID [16]byte `json:"device_uuid"`
	DriverUUID [16]byte `json:"driver_uuid"`
}

// VulkanInfo is the memory index and device identity of the VkDeviceMemory
// backing a blob resource.
type VulkanInfo struct {
	MemoryIdx uint32   `json:"memory_idx"`
	DeviceID  DeviceID `json:"device_id"`
}

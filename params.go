package gpubridge

// Pipe target and bind constants based on Mesa's Gallium interface. Not part
// of the virtio-gpu protocol, but dumb resources cannot work with the
// accelerated backends without them.
const (
	PipeTexture2D        uint32 = 2
	PipeBindRenderTarget uint32 = 2
)

// Subset of virtio-gpu 2D formats understood by the software rasterizer.
const (
	FormatB8G8R8A8 uint32 = 1
	FormatR8G8B8A8 uint32 = 67
)

// ResourceCreate3D carries 3D resource creation parameters. Also used to
// create 2D resources.
type ResourceCreate3D struct {
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

// Blob memory kinds.
const (
	BlobMemGuest       uint32 = 0x0001
	BlobMemHost3D      uint32 = 0x0002
	BlobMemHost3DGuest uint32 = 0x0003
)

// Blob usage flags.
const (
	BlobFlagUseMappable    uint32 = 0x0001
	BlobFlagUseShareable   uint32 = 0x0002
	BlobFlagUseCrossDevice uint32 = 0x0004
)

// ResourceCreateBlob carries blob resource creation parameters.
type ResourceCreateBlob struct {
	BlobMem   uint32
	BlobFlags uint32
	BlobID    uint64
	Size      uint64
}

// Mapped memory caching flags from the virtio-gpu protocol, and access flags
// (not in the protocol, reported by backends).
const (
	MapCacheMask     uint32 = 0x0f
	MapCacheCached   uint32 = 0x01
	MapCacheUncached uint32 = 0x02
	MapCacheWC       uint32 = 0x03

	MapAccessMask  uint32 = 0xf0
	MapAccessRead  uint32 = 0x10
	MapAccessWrite uint32 = 0x20
	MapAccessRW    uint32 = 0x30
)

// Capset identifiers negotiated before context creation.
const (
	CapsetVirgl        uint32 = 1
	CapsetVirgl2       uint32 = 2
	CapsetStreamVulkan uint32 = 3
	CapsetVenus        uint32 = 4
	CapsetCrossDomain  uint32 = 5
	CapsetDrm          uint32 = 6
)

// ContextInitCapsetIDMask selects the capset id from context init flags.
const ContextInitCapsetIDMask uint32 = 0x00ff

// Resource import flags. Info3D and InfoVulkan are mutually exclusive; the
// import is rejected before any backend call if both are set.
const (
	ImportFlagInfo3D          uint32 = 1 << 0
	ImportFlagInfoVulkan      uint32 = 1 << 1
	ImportFlagResourceExists  uint32 = 1 << 30
	ImportFlagPreserveContent uint32 = 1 << 31
)

// ImportData describes an externally allocated memory object being handed to
// a backend. Exactly one metadata kind accompanies the handle.
type ImportData struct {
	Flags      uint32
	Info3D     Info3D
	InfoVulkan VulkanInfo
}

package gpubridge

// ComponentType enumerates the interchangeable rendering backends.
type ComponentType uint8

const (
	ComponentSoftware2D ComponentType = iota
	ComponentAccel
	ComponentStream
	ComponentPassthrough
)

func (t ComponentType) String() string {
	switch t {
	case ComponentSoftware2D:
		return "software2d"
	case ComponentAccel:
		return "accel"
	case ComponentStream:
		return "stream"
	case ComponentPassthrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// Mask returns the component bit used in Resource.ComponentMask.
func (t ComponentType) Mask() uint8 {
	return 1 << uint8(t)
}

// Resource is the host-side record of one guest-visible resource. A resource
// is owned by exactly one component at a time. The backing iovec list and
// the exported handle may coexist; neither implies the other.
type Resource struct {
	ResourceID    uint32
	Handle        *Handle
	Blob          bool
	BlobMem       uint32
	BlobFlags     uint32
	MapInfo       *uint32
	Info2D        *Info2D
	Info3D        *Info3D
	VulkanInfo    *VulkanInfo
	BackingIovecs []Iovec
	ComponentMask uint8
	Size          uint64
	Mapping       MappedRegion
}

// OwnedBy reports whether the component owns this resource.
func (r *Resource) OwnedBy(t ComponentType) bool {
	return r.ComponentMask&t.Mask() != 0
}

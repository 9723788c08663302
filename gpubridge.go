package gpubridge

// Descriptor is an exclusively owned OS handle (file descriptor, shared
// memory object, or platform equivalent). Ownership transfers with the value;
// sharing requires an explicit TryClone, which duplicates through an
// OS-specific mechanism rather than aliasing the underlying handle.
type Descriptor interface {
	// TryClone duplicates the descriptor. The clone has independent
	// lifetime and must be closed separately.
	TryClone() (Descriptor, error)

	// Raw exposes the numeric handle value for crossing the native call
	// surface. The descriptor retains ownership.
	Raw() uintptr

	// Close releases the handle. Closing twice is an error.
	Close() error
}

// Mapping is a transient process-local view of blob storage, reported by a
// backend as a base pointer and length. It carries no ownership; the backend
// keeps the region valid until the resource is unmapped.
type Mapping struct {
	Ptr  uint64
	Size uint64
}

// MappedRegion is an owned host memory mapping with release-on-close
// semantics. Implementations unmap the region exactly once.
type MappedRegion interface {
	Pointer() uint64
	Size() uint64
	Close() error
}

// Mapper creates MappedRegions from exported descriptors. It is the
// capability interface through which the core reaches the OS mmap
// primitives; see the osdesc package for the Linux implementation.
type Mapper interface {
	// Map maps size bytes of the descriptor's memory object with the
	// access rights encoded in mapInfo (MapAccess* flags).
	Map(d Descriptor, size uint64, mapInfo uint32) (MappedRegion, error)
}

// Iovec is one guest backing range. The byte slice views guest-shared pages:
// contents may change at any time and must not be assumed stable across
// calls.
type Iovec []byte

// IovecLen sums the byte length of a backing list.
func IovecLen(vecs []Iovec) uint64 {
	var n uint64
	for _, v := range vecs {
		n += uint64(len(v))
	}
	return n
}

package gpubridge

// Handle types for memory and synchronization objects share one namespace.
const (
	HandleTypeMemOpaqueFD    uint32 = 0x0001
	HandleTypeMemDmabuf      uint32 = 0x0002
	HandleTypeMemOpaqueWin32 uint32 = 0x0003
	HandleTypeMemShm         uint32 = 0x0004
	HandleTypeMemZircon      uint32 = 0x0005

	HandleTypeSignalOpaqueFD    uint32 = 0x0010
	HandleTypeSignalSyncFD      uint32 = 0x0020
	HandleTypeSignalOpaqueWin32 uint32 = 0x0030
	HandleTypeSignalZircon      uint32 = 0x0040
	HandleTypeSignalEventFD     uint32 = 0x0050
)

// Handle pairs an owned OS descriptor with a type tag describing what the
// descriptor represents.
type Handle struct {
	OS   Descriptor
	Type uint32
}

// TryClone duplicates the handle using the descriptor's OS-specific clone.
// The clone is independently owned.
func (h *Handle) TryClone() (*Handle, error) {
	clone, err := h.OS.TryClone()
	if err != nil {
		return nil, err
	}
	return &Handle{OS: clone, Type: h.Type}, nil
}

// Close releases the underlying descriptor.
func (h *Handle) Close() error {
	return h.OS.Close()
}

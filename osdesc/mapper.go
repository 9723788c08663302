//go:build linux

package osdesc

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/errors"
)

// Mapper maps exported memory descriptors into the process through mmap.
// The access rights come from the backend-reported map info; requesting a
// mapping without access bits is a contract violation, not an OS error.
type Mapper struct{}

// Map creates a shared mapping of size bytes of the descriptor's memory
// object with the access encoded in mapInfo.
func (Mapper) Map(d gpubridge.Descriptor, size uint64, mapInfo uint32) (gpubridge.MappedRegion, error) {
	if size == 0 {
		return nil, errors.SpecViolation("zero-length mapping")
	}

	var prot int
	switch mapInfo & gpubridge.MapAccessMask {
	case gpubridge.MapAccessRead:
		prot = unix.PROT_READ
	case gpubridge.MapAccessWrite:
		prot = unix.PROT_WRITE
	case gpubridge.MapAccessRW:
		prot = unix.PROT_READ | unix.PROT_WRITE
	default:
		return nil, errors.SpecViolation(fmt.Sprintf("map info %#x carries no access rights", mapInfo))
	}

	data, err := unix.Mmap(int(d.Raw()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.New(errors.KindMapping).
			Detail("mmap %d bytes of fd %d", size, d.Raw()).
			Cause(err).
			Build()
	}
	return &mappedRegion{data: data}, nil
}

type mappedRegion struct {
	mu   sync.Mutex
	data []byte
}

func (m *mappedRegion) Pointer() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&m.data[0])))
}

func (m *mappedRegion) Size() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.data))
}

func (m *mappedRegion) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return errors.SpecViolation("region already unmapped")
	}
	data := m.data
	m.data = nil
	if err := unix.Munmap(data); err != nil {
		return errors.Internal(fmt.Errorf("munmap: %w", err))
	}
	return nil
}

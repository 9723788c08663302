//go:build linux

// Package osdesc implements the descriptor and mapping capabilities on
// Linux file descriptors. Backends export raw descriptor numbers across the
// native call surface; Adopt takes ownership of them, TryClone duplicates
// through dup, and Mapper produces shared mappings of exported memory
// objects.
package osdesc

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/errors"
)

// FileDescriptor owns one open fd.
type FileDescriptor struct {
	fd     int
	mu     sync.Mutex
	closed bool
}

// Adopt takes ownership of a raw descriptor number exported by a backend.
// The caller must not use or close the number afterwards.
func Adopt(raw int64) (gpubridge.Descriptor, error) {
	if raw < 0 {
		return nil, errors.InvalidHandle(fmt.Errorf("negative descriptor %d", raw))
	}
	return &FileDescriptor{fd: int(raw)}, nil
}

// TryClone duplicates the descriptor with close-on-exec set. The clone has
// independent lifetime.
func (d *FileDescriptor) TryClone() (gpubridge.Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.InvalidHandle(fmt.Errorf("descriptor %d already closed", d.fd))
	}
	dup, err := unix.FcntlInt(uintptr(d.fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, errors.InvalidHandle(fmt.Errorf("dup fd %d: %w", d.fd, err))
	}
	return &FileDescriptor{fd: dup}, nil
}

// Raw exposes the fd number without giving up ownership.
func (d *FileDescriptor) Raw() uintptr {
	return uintptr(d.fd)
}

// Close releases the fd. Closing twice is an error.
func (d *FileDescriptor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.InvalidHandle(fmt.Errorf("descriptor %d double close", d.fd))
	}
	d.closed = true
	if err := unix.Close(d.fd); err != nil {
		return errors.InvalidHandle(fmt.Errorf("close fd %d: %w", d.fd, err))
	}
	return nil
}

// NewMemfd allocates an anonymous shareable memory object of the given size.
func NewMemfd(name string, size uint64) (gpubridge.Descriptor, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("memfd_create %q: %w", name, err))
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, errors.Internal(fmt.Errorf("ftruncate memfd to %d: %w", size, err))
	}
	return &FileDescriptor{fd: fd}, nil
}

// ShmAlloc allocates anonymous shareable memory for guest blob export. Its
// signature matches the component option of the same name.
func ShmAlloc(size uint64) (gpubridge.Descriptor, error) {
	return NewMemfd("gpu-bridge-blob", size)
}

//go:build linux

package main

import (
	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/osdesc"
)

// shmAlloc backs shareable guest blobs with sealed memfd regions so the
// passthrough variant can hand out export handles.
var shmAlloc func(size uint64) (gpubridge.Descriptor, error) = osdesc.ShmAlloc

// hostMapper maps exported blob handles for components without their own
// map path.
var hostMapper gpubridge.Mapper = osdesc.Mapper{}

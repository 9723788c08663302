//go:build !linux

package main

import gpubridge "github.com/virtgfx/gpu-bridge"

// Shareable guest blobs carry no export handle off Linux, and exported
// handles cannot be host-mapped.
var shmAlloc func(size uint64) (gpubridge.Descriptor, error)

var hostMapper gpubridge.Mapper

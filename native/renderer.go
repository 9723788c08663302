package native

import (
	gpubridge "github.com/virtgfx/gpu-bridge"
)

// Renderer is the fixed-ABI operation set of a native rendering backend.
// Zero return means success; non-zero is a backend-defined failure code.
//
// Renderer methods are not internally synchronized with respect to a single
// resource or context; the dispatcher guarantees at most one in-flight call
// per id. Callbacks registered through Init may fire on backend-owned
// threads at any time after a submission.
type Renderer interface {
	// Lifecycle.
	Init(cfg InitConfig) int32
	Teardown()

	// Capability ops.
	GetCapsetInfo(set uint32) (version uint32, size uint32)
	FillCaps(set uint32, version uint32, caps []byte)

	// Resource ops.
	ResourceCreate3D(args ResourceCreateArgs, backing []gpubridge.Iovec) int32
	ResourceUnref(resID uint32)
	AttachBacking(resID uint32, backing []gpubridge.Iovec) int32
	DetachBacking(resID uint32)
	TransferRead(resID, ctxID uint32, level uint32, stride, layerStride uint32, box Box3D, offset uint64, buf []byte) int32
	TransferWrite(resID, ctxID uint32, level uint32, stride, layerStride uint32, box Box3D, offset uint64) int32
	Flush(resID uint32)
	CreateBlob(ctxID, resID uint32, create gpubridge.ResourceCreateBlob, backing []gpubridge.Iovec, handle *RawHandle) int32
	ExportBlob(resID uint32) (RawHandle, int32)
	Map(resID uint32) (ptr uint64, size uint64, ret int32)
	Unmap(resID uint32) int32
	MapInfo(resID uint32) (mapInfo uint32, ret int32)
	VulkanInfo(resID uint32) (VulkanInfoOut, int32)

	// Context ops.
	ContextCreate(ctxID uint32, name string, contextInit uint32) int32
	ContextDestroy(ctxID uint32)
	SubmitCmd(cmd Command) int32
	CtxAttachResource(ctxID, resID uint32)
	CtxDetachResource(ctxID, resID uint32)

	// Fence ops.
	CreateFence(fence gpubridge.Fence) int32
	ExportFence(fenceID uint64) (RawHandle, int32)

	// Snapshot ops. Backends without snapshot support return a non-zero
	// code from each.
	Suspend() int32
	Snapshot(dir string) int32
	Restore(dir string) int32
	Resume() int32
	ImportResource(resID uint32, handle RawHandle, data ImportData) int32
}

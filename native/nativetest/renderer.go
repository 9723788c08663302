// Package nativetest provides an in-memory Renderer implementation for
// exercising the adapter and dispatcher layers without a real rendering
// backend.
package nativetest

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/native"
)

// Status codes returned by the fake on failure paths. Arbitrary non-zero
// values; the bridge must surface them verbatim.
const (
	StatusUnknownResource int32 = -2
	StatusUnknownContext  int32 = -3
	StatusNotMapped       int32 = -4
	StatusUnsupported     int32 = -5
)

type fakeResource struct {
	data      []byte
	blob      bool
	blobMem   uint32
	blobFlags uint32
	backing   []gpubridge.Iovec
	mapped    bool
	exported  int
}

type fakeContext struct {
	name     string
	init     uint32
	attached map[uint32]bool
}

type capset struct {
	version uint32
	data    []byte
}

// Renderer is a fully in-memory native.Renderer. All state is process-local;
// exported handles are synthetic descriptor numbers starting at 1000.
type Renderer struct {
	mu        sync.Mutex
	resources map[uint32]*fakeResource
	contexts  map[uint32]*fakeContext
	capsets   map[uint32]capset
	fences    map[uint64]gpubridge.Fence
	snapshots map[string]snapshotState
	cfg       native.InitConfig
	nextFd    int64
	suspended bool

	// TransferCalls counts transfer reads and writes that reached the
	// backend, so tests can assert that empty regions never arrive here.
	TransferCalls int

	// FlushCalls counts resource_flush invocations.
	FlushCalls int
}

type snapshotState struct {
	resourceIDs []uint32
	contextIDs  []uint32
}

// New creates a fake renderer with capsets 3 (stream vulkan) and 5
// (cross domain) pre-registered.
func New() *Renderer {
	r := &Renderer{
		resources: make(map[uint32]*fakeResource),
		contexts:  make(map[uint32]*fakeContext),
		capsets:   make(map[uint32]capset),
		fences:    make(map[uint64]gpubridge.Fence),
		snapshots: make(map[string]snapshotState),
		nextFd:    1000,
	}
	r.SetCapset(gpubridge.CapsetStreamVulkan, 2, make([]byte, 184))
	r.SetCapset(gpubridge.CapsetCrossDomain, 1, make([]byte, 96))
	return r
}

// SetCapset registers or replaces a capability set.
func (r *Renderer) SetCapset(id, version uint32, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capsets[id] = capset{version: version, data: data}
}

// RetireFences completes every pending fence in fence-id order by invoking
// the registered fence callback, simulating the backend's sync thread.
func (r *Renderer) RetireFences() {
	r.mu.Lock()
	pending := make([]gpubridge.Fence, 0, len(r.fences))
	for _, f := range r.fences {
		pending = append(pending, f)
	}
	r.fences = make(map[uint64]gpubridge.Fence)
	cb := r.cfg.FenceCallback
	r.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].FenceID < pending[j].FenceID
	})

	for _, f := range pending {
		if cb != nil {
			cb(f)
		}
	}
}

func (r *Renderer) Init(cfg native.InitConfig) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	return 0
}

func (r *Renderer) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources = make(map[uint32]*fakeResource)
	r.contexts = make(map[uint32]*fakeContext)
}

func (r *Renderer) GetCapsetInfo(set uint32) (uint32, uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.capsets[set]
	if !ok {
		return 0, 0
	}
	return cs.version, uint32(len(cs.data))
}

func (r *Renderer) FillCaps(set, version uint32, caps []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cs, ok := r.capsets[set]; ok {
		copy(caps, cs.data)
	}
}

func (r *Renderer) ResourceCreate3D(args native.ResourceCreateArgs, backing []gpubridge.Iovec) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := uint64(args.Width) * uint64(args.Height) * uint64(args.Depth) * 4
	r.resources[args.Handle] = &fakeResource{
		data:    make([]byte, size),
		backing: backing,
	}
	return 0
}

func (r *Renderer) ResourceUnref(resID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resources, resID)
}

func (r *Renderer) AttachBacking(resID uint32, backing []gpubridge.Iovec) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[resID]
	if !ok {
		return StatusUnknownResource
	}
	res.backing = backing
	return 0
}

func (r *Renderer) DetachBacking(resID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.resources[resID]; ok {
		res.backing = nil
	}
}

func (r *Renderer) TransferRead(resID, ctxID uint32, level uint32, stride, layerStride uint32, box native.Box3D, offset uint64, buf []byte) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[resID]
	if !ok {
		return StatusUnknownResource
	}
	r.TransferCalls++
	if buf != nil && offset < uint64(len(res.data)) {
		copy(buf, res.data[offset:])
	}
	return 0
}

func (r *Renderer) TransferWrite(resID, ctxID uint32, level uint32, stride, layerStride uint32, box native.Box3D, offset uint64) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[resID]
	if !ok {
		return StatusUnknownResource
	}
	r.TransferCalls++
	pos := offset
	for _, iov := range res.backing {
		if pos >= uint64(len(res.data)) {
			break
		}
		pos += uint64(copy(res.data[pos:], iov))
	}
	return 0
}

func (r *Renderer) Flush(resID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FlushCalls++
}

func (r *Renderer) CreateBlob(ctxID, resID uint32, create gpubridge.ResourceCreateBlob, backing []gpubridge.Iovec, handle *native.RawHandle) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[resID] = &fakeResource{
		data:      make([]byte, create.Size),
		blob:      true,
		blobMem:   create.BlobMem,
		blobFlags: create.BlobFlags,
		backing:   backing,
	}
	return 0
}

func (r *Renderer) ExportBlob(resID uint32) (native.RawHandle, int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[resID]
	if !ok || !res.blob {
		return native.RawHandle{}, StatusUnknownResource
	}
	res.exported++
	fd := r.nextFd
	r.nextFd++
	return native.RawHandle{OSHandle: fd, HandleType: gpubridge.HandleTypeMemOpaqueFD}, 0
}

func (r *Renderer) Map(resID uint32) (uint64, uint64, int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[resID]
	if !ok || !res.blob || len(res.data) == 0 {
		return 0, 0, StatusUnknownResource
	}
	res.mapped = true
	return uint64(uintptr(unsafe.Pointer(&res.data[0]))), uint64(len(res.data)), 0
}

func (r *Renderer) Unmap(resID uint32) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[resID]
	if !ok {
		return StatusUnknownResource
	}
	if !res.mapped {
		return StatusNotMapped
	}
	res.mapped = false
	return 0
}

func (r *Renderer) MapInfo(resID uint32) (uint32, int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[resID]; !ok {
		return 0, StatusUnknownResource
	}
	return gpubridge.MapCacheCached, 0
}

func (r *Renderer) VulkanInfo(resID uint32) (native.VulkanInfoOut, int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[resID]; !ok {
		return native.VulkanInfoOut{}, StatusUnknownResource
	}
	out := native.VulkanInfoOut{MemoryIndex: 1}
	copy(out.DeviceUUID[:], "nativetest-dev-0")
	copy(out.DriverUUID[:], "nativetest-drv-0")
	return out, 0
}

func (r *Renderer) ContextCreate(ctxID uint32, name string, contextInit uint32) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[ctxID] = &fakeContext{
		name:     name,
		init:     contextInit,
		attached: make(map[uint32]bool),
	}
	return 0
}

func (r *Renderer) ContextDestroy(ctxID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, ctxID)
}

func (r *Renderer) SubmitCmd(cmd native.Command) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contexts[cmd.CtxID]; !ok {
		return StatusUnknownContext
	}
	return 0
}

func (r *Renderer) CtxAttachResource(ctxID, resID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx, ok := r.contexts[ctxID]; ok {
		ctx.attached[resID] = true
	}
}

func (r *Renderer) CtxDetachResource(ctxID, resID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx, ok := r.contexts[ctxID]; ok {
		delete(ctx.attached, resID)
	}
}

func (r *Renderer) CreateFence(fence gpubridge.Fence) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fences[fence.FenceID] = fence
	return 0
}

func (r *Renderer) ExportFence(fenceID uint64) (native.RawHandle, int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fences[fenceID]; !ok {
		return native.RawHandle{}, StatusUnsupported
	}
	fd := r.nextFd
	r.nextFd++
	return native.RawHandle{OSHandle: fd, HandleType: gpubridge.HandleTypeSignalSyncFD}, 0
}

func (r *Renderer) Suspend() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended = true
	return 0
}

func (r *Renderer) Snapshot(dir string) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var st snapshotState
	for id := range r.resources {
		st.resourceIDs = append(st.resourceIDs, id)
	}
	for id := range r.contexts {
		st.contextIDs = append(st.contextIDs, id)
	}
	r.snapshots[dir] = st
	return 0
}

func (r *Renderer) Restore(dir string) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.snapshots[dir]
	if !ok {
		return StatusUnsupported
	}
	for _, id := range st.contextIDs {
		if _, live := r.contexts[id]; !live {
			r.contexts[id] = &fakeContext{attached: make(map[uint32]bool)}
		}
	}
	return 0
}

func (r *Renderer) Resume() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended = false
	return 0
}

func (r *Renderer) ImportResource(resID uint32, handle native.RawHandle, data native.ImportData) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if data.Flags&gpubridge.ImportFlagResourceExists != 0 {
		if _, ok := r.resources[resID]; !ok {
			return StatusUnknownResource
		}
		return 0
	}
	r.resources[resID] = &fakeResource{
		blob: true,
		data: make([]byte, uint64(data.Info3D.Width)*uint64(data.Info3D.Height)*4),
	}
	return 0
}

// Descriptor is the synthetic descriptor produced by Adopt. It satisfies the
// capability interface without touching real OS handles.
type Descriptor struct {
	fd     int64
	mu     sync.Mutex
	closed bool
}

func (d *Descriptor) TryClone() (gpubridge.Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("descriptor %d already closed", d.fd)
	}
	return &Descriptor{fd: d.fd}, nil
}

func (d *Descriptor) Raw() uintptr {
	return uintptr(d.fd)
}

func (d *Descriptor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("descriptor %d double close", d.fd)
	}
	d.closed = true
	return nil
}

// Adopt wraps a raw handle value in a synthetic Descriptor. Tests hand this
// to adapter configs in place of the osdesc adopter.
func Adopt(raw int64) (gpubridge.Descriptor, error) {
	return &Descriptor{fd: raw}, nil
}

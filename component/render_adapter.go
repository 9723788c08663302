package component

import (
	"encoding/json"

	"go.uber.org/zap"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/errors"
	"github.com/virtgfx/gpu-bridge/native"
)

// renderAdapter is the plumbing shared by the variants that sit on the
// native call surface. The accelerated and streaming variants differ in
// init translation, capset ownership and a few probe rules; everything else
// is this adapter.
type renderAdapter struct {
	state *native.State
	adopt AdoptFunc
	ctype gpubridge.ComponentType

	snapshotDir string

	// forceRWMap widens backend map info with read-write access, matching
	// the streaming renderer's contract.
	forceRWMap bool

	// fenceExport gates the optional fence export op.
	fenceExport bool
}

type componentSnapshot struct {
	Dir string `json:"dir"`
}

type contextSnapshot struct {
	CtxID uint32 `json:"ctx_id"`
}

func newRenderAdapter(ctype gpubridge.ComponentType, opts Options, cfg native.InitConfig) (*renderAdapter, error) {
	if opts.Renderer == nil {
		return nil, errors.InvalidComponent(ctype.String() + ": no native renderer")
	}
	if opts.Adopt == nil {
		return nil, errors.InvalidComponent(ctype.String() + ": no descriptor adopter")
	}

	cfg.FenceCallback = opts.FenceHandler
	if opts.DebugHandler != nil {
		h := opts.DebugHandler
		cfg.DebugCallback = func(d gpubridge.Debug) { h(d) }
	}

	state, err := native.NewState(opts.Renderer, cfg)
	if err != nil {
		return nil, err
	}

	return &renderAdapter{
		state:       state,
		adopt:       opts.Adopt,
		ctype:       ctype,
		snapshotDir: opts.SnapshotDir,
	}, nil
}

func (a *renderAdapter) r() native.Renderer {
	return a.state.Renderer()
}

func (a *renderAdapter) adoptRaw(raw native.RawHandle) (*gpubridge.Handle, error) {
	d, err := a.adopt(raw.OSHandle)
	if err != nil {
		return nil, errors.InvalidHandle(err)
	}
	return &gpubridge.Handle{OS: d, Type: raw.HandleType}, nil
}

func (a *renderAdapter) Type() gpubridge.ComponentType {
	return a.ctype
}

func (a *renderAdapter) Close() {
	a.state.Teardown()
}

func (a *renderAdapter) GetCapsetInfo(capsetID uint32) (uint32, uint32) {
	return a.r().GetCapsetInfo(capsetID)
}

func (a *renderAdapter) GetCapset(capsetID, version uint32) []byte {
	_, maxSize := a.r().GetCapsetInfo(capsetID)
	buf := make([]byte, maxSize)
	a.r().FillCaps(capsetID, version, buf)
	return buf
}

func (a *renderAdapter) CreateFence(fence gpubridge.Fence) error {
	return statusToErr(a.r().CreateFence(fence))
}

func (a *renderAdapter) Create3D(resourceID uint32, create gpubridge.ResourceCreate3D) (*gpubridge.Resource, error) {
	args := native.ResourceCreateArgs{
		Handle:    resourceID,
		Target:    create.Target,
		Format:    create.Format,
		Bind:      create.Bind,
		Width:     create.Width,
		Height:    create.Height,
		Depth:     create.Depth,
		ArraySize: create.ArraySize,
		LastLevel: create.LastLevel,
		NrSamples: create.NrSamples,
		Flags:     create.Flags,
	}

	if err := statusToErr(a.r().ResourceCreate3D(args, nil)); err != nil {
		return nil, err
	}

	return &gpubridge.Resource{
		ResourceID:    resourceID,
		ComponentMask: a.ctype.Mask(),
	}, nil
}

func (a *renderAdapter) CreateBlob(ctxID, resourceID uint32, create gpubridge.ResourceCreateBlob, backing []gpubridge.Iovec, handle *gpubridge.Handle) (*gpubridge.Resource, error) {
	var raw *native.RawHandle
	if handle != nil {
		// Ownership of the descriptor transfers to the backend.
		raw = &native.RawHandle{
			OSHandle:   int64(handle.OS.Raw()),
			HandleType: handle.Type,
		}
	}

	if err := statusToErr(a.r().CreateBlob(ctxID, resourceID, create, backing, raw)); err != nil {
		return nil, err
	}

	res := &gpubridge.Resource{
		ResourceID:    resourceID,
		Blob:          true,
		BlobMem:       create.BlobMem,
		BlobFlags:     create.BlobFlags,
		BackingIovecs: backing,
		ComponentMask: a.ctype.Mask(),
		Size:          create.Size,
	}

	// Probe the optional blob properties. Failures leave the field unset;
	// they do not fail creation.
	if exported, ret := a.r().ExportBlob(resourceID); ret == 0 {
		if h, err := a.adoptRaw(exported); err == nil {
			res.Handle = h
		} else {
			Logger().Debug("export probe handle rejected",
				zap.Uint32("resource_id", resourceID),
				zap.Error(err))
		}
	}
	if mapInfo, ret := a.r().MapInfo(resourceID); ret == 0 {
		if a.forceRWMap {
			mapInfo |= gpubridge.MapAccessRW
		}
		res.MapInfo = &mapInfo
	}
	if vk, ret := a.r().VulkanInfo(resourceID); ret == 0 {
		res.VulkanInfo = &gpubridge.VulkanInfo{
			MemoryIdx: vk.MemoryIndex,
			DeviceID: gpubridge.DeviceID{
				DeviceUUID: vk.DeviceUUID,
				DriverUUID: vk.DriverUUID,
			},
		}
	}

	return res, nil
}

func (a *renderAdapter) Import(resourceID uint32, handle *gpubridge.Handle, data gpubridge.ImportData) (*gpubridge.Resource, error) {
	has3D := data.Flags&gpubridge.ImportFlagInfo3D != 0
	hasVulkan := data.Flags&gpubridge.ImportFlagInfoVulkan != 0
	if has3D && hasVulkan {
		return nil, errors.InvalidImportData("both image layout and device identity set")
	}
	if !has3D && !hasVulkan {
		return nil, errors.InvalidImportData("no metadata kind set")
	}

	raw := native.RawHandle{
		OSHandle:   int64(handle.OS.Raw()),
		HandleType: handle.Type,
	}
	nd := native.ImportData{
		Flags: data.Flags,
		Info3D: native.Info3DOut{
			Width:     data.Info3D.Width,
			Height:    data.Info3D.Height,
			DrmFourcc: data.Info3D.DrmFourcc,
			Strides:   data.Info3D.Strides,
			Offsets:   data.Info3D.Offsets,
			Modifier:  data.Info3D.Modifier,
		},
		InfoVulkan: native.VulkanInfoOut{
			MemoryIndex: data.InfoVulkan.MemoryIdx,
			DeviceUUID:  data.InfoVulkan.DeviceID.DeviceUUID,
			DriverUUID:  data.InfoVulkan.DeviceID.DriverUUID,
		},
	}

	if err := statusToErr(a.r().ImportResource(resourceID, raw, nd)); err != nil {
		return nil, err
	}

	if data.Flags&gpubridge.ImportFlagResourceExists != 0 {
		return nil, nil
	}

	return &gpubridge.Resource{
		ResourceID:    resourceID,
		Blob:          true,
		ComponentMask: a.ctype.Mask(),
	}, nil
}

func (a *renderAdapter) AttachBacking(resourceID uint32, backing []gpubridge.Iovec) error {
	return statusToErr(a.r().AttachBacking(resourceID, backing))
}

func (a *renderAdapter) DetachBacking(resourceID uint32) {
	a.r().DetachBacking(resourceID)
}

func (a *renderAdapter) UnrefResource(resourceID uint32) {
	a.r().ResourceUnref(resourceID)
}

func (a *renderAdapter) TransferWrite(ctxID uint32, res *gpubridge.Resource, t gpubridge.Transfer3D) error {
	if t.IsEmpty() {
		return nil
	}
	return statusToErr(a.r().TransferWrite(res.ResourceID, ctxID, t.Level, t.Stride, t.LayerStride, native.BoxFromTransfer(t), t.Offset))
}

func (a *renderAdapter) TransferRead(ctxID uint32, res *gpubridge.Resource, t gpubridge.Transfer3D, buf []byte) error {
	if t.IsEmpty() {
		return nil
	}
	return statusToErr(a.r().TransferRead(res.ResourceID, ctxID, t.Level, t.Stride, t.LayerStride, native.BoxFromTransfer(t), t.Offset, buf))
}

func (a *renderAdapter) ResourceFlush(res *gpubridge.Resource) error {
	a.r().Flush(res.ResourceID)
	return nil
}

func (a *renderAdapter) Map(resourceID uint32) (gpubridge.Mapping, error) {
	ptr, size, ret := a.r().Map(resourceID)
	if ret != 0 {
		return gpubridge.Mapping{}, errors.Mapping(ret)
	}
	return gpubridge.Mapping{Ptr: ptr, Size: size}, nil
}

func (a *renderAdapter) Unmap(resourceID uint32) error {
	return statusToErr(a.r().Unmap(resourceID))
}

func (a *renderAdapter) CreateContext(ctxID uint32, contextInit uint32, name string, h gpubridge.FenceHandler) (Context, error) {
	if name == "" {
		name = "gpu_renderer"
	}

	if err := statusToErr(a.r().ContextCreate(ctxID, name, contextInit)); err != nil {
		return nil, err
	}
	return &renderContext{adapter: a, ctxID: ctxID, fenceHandler: h}, nil
}

func (a *renderAdapter) Suspend() error {
	return statusToErr(a.r().Suspend())
}

func (a *renderAdapter) Snapshot() ([]byte, error) {
	if err := statusToErr(a.r().Snapshot(a.snapshotDir)); err != nil {
		return nil, err
	}
	return json.Marshal(componentSnapshot{Dir: a.snapshotDir})
}

func (a *renderAdapter) Restore(data []byte) error {
	var snap componentSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errors.Snapshot("component state", err)
	}
	return statusToErr(a.r().Restore(snap.Dir))
}

func (a *renderAdapter) RestoreContext(data []byte, h gpubridge.FenceHandler) (Context, error) {
	var snap contextSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Snapshot("context state", err)
	}
	return &renderContext{adapter: a, ctxID: snap.CtxID, fenceHandler: h}, nil
}

func (a *renderAdapter) Resume() error {
	return statusToErr(a.r().Resume())
}

// renderContext is a context bound to a native-surface variant.
type renderContext struct {
	adapter      *renderAdapter
	ctxID        uint32
	fenceHandler gpubridge.FenceHandler
}

func (c *renderContext) Type() gpubridge.ComponentType {
	return c.adapter.ctype
}

func (c *renderContext) SubmitCmd(commands []byte, fenceIDs []uint64) error {
	if len(commands)%commandWordSize != 0 {
		return errors.InvalidCommandSize(len(commands))
	}
	return statusToErr(c.adapter.r().SubmitCmd(native.Command{
		CtxID:    c.ctxID,
		Cmd:      commands,
		FenceIDs: fenceIDs,
	}))
}

func (c *renderContext) Attach(res *gpubridge.Resource) {
	c.adapter.r().CtxAttachResource(c.ctxID, res.ResourceID)
}

func (c *renderContext) Detach(res *gpubridge.Resource) {
	c.adapter.r().CtxDetachResource(c.ctxID, res.ResourceID)
}

func (c *renderContext) CreateFence(fence gpubridge.Fence) (*gpubridge.Handle, error) {
	// Ring index 1 completes synchronously without a backend round trip.
	// The sole ring with this behavior; see the fence protocol notes.
	if uint32(fence.RingIdx) == 1 {
		c.fenceHandler(fence)
		return nil, nil
	}

	if err := statusToErr(c.adapter.r().CreateFence(fence)); err != nil {
		return nil, err
	}

	if fence.Flags&gpubridge.FlagFenceHostShareable != 0 {
		return c.exportFence(fence.FenceID)
	}
	return nil, nil
}

// exportFence obtains an OS handle for a created fence. Failures here are
// distinct from fence creation failures: the fence exists either way.
func (c *renderContext) exportFence(fenceID uint64) (*gpubridge.Handle, error) {
	if !c.adapter.fenceExport {
		return nil, errors.Unsupported("fence export")
	}
	raw, ret := c.adapter.r().ExportFence(fenceID)
	if ret != 0 {
		return nil, errors.New(errors.KindUnsupported).
			Detail("fence export").
			Status(ret).
			Build()
	}
	return c.adapter.adoptRaw(raw)
}

func (c *renderContext) Snapshot() ([]byte, error) {
	data, err := json.Marshal(contextSnapshot{CtxID: c.ctxID})
	if err != nil {
		return nil, errors.Snapshot("context state", err)
	}
	return data, nil
}

func (c *renderContext) Destroy() {
	c.adapter.r().ContextDestroy(c.ctxID)
}

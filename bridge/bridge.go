// Package bridge dispatches guest requests to rendering components. It is
// the sole writer of the id registries: every guest-visible resource and
// context id maps to at most one live entry, and creation or destruction of
// an id is serialized by the registry mutex. All other state lives in the
// owning component.
package bridge

import (
	"cmp"
	"encoding/json"
	stderrors "errors"
	"io"
	"slices"
	"sync"

	"go.uber.org/zap"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/component"
	"github.com/virtgfx/gpu-bridge/errors"
	"github.com/virtgfx/gpu-bridge/fence"
	"github.com/virtgfx/gpu-bridge/snapshot"
)

// knownCapsets are the capset ids probed against each component at startup.
var knownCapsets = []uint32{
	gpubridge.CapsetVirgl,
	gpubridge.CapsetVirgl2,
	gpubridge.CapsetStreamVulkan,
	gpubridge.CapsetVenus,
	gpubridge.CapsetCrossDomain,
	gpubridge.CapsetDrm,
}

type capsetEntry struct {
	id        uint32
	component gpubridge.ComponentType
	version   uint32
	size      uint32
}

// Bridge routes requests by guest-visible id. Construct it with a Builder.
//
// The bridge serializes all dispatch internally; completion delivery is the
// only asynchronous path and goes through the fence manager.
type Bridge struct {
	mu sync.Mutex

	components  map[gpubridge.ComponentType]component.Component
	defaultType gpubridge.ComponentType

	resources map[uint32]*gpubridge.Resource
	contexts  map[uint32]component.Context

	capsets []capsetEntry
	fences  *fence.Manager

	// mapper maps exported blob handles when the owning component has no
	// map path of its own. Nil disables the fallback.
	mapper gpubridge.Mapper

	// completions is non-nil in channel delivery mode.
	completions <-chan gpubridge.Fence
}

// Completions returns the fence delivery channel when the bridge was built
// with WithFenceChannel, nil otherwise.
func (b *Bridge) Completions() <-chan gpubridge.Fence {
	return b.completions
}

func (b *Bridge) componentByType(t gpubridge.ComponentType) (component.Component, error) {
	c, ok := b.components[t]
	if !ok {
		return nil, errors.InvalidComponent(t.String())
	}
	return c, nil
}

func (b *Bridge) componentFor(res *gpubridge.Resource) (component.Component, error) {
	for t, c := range b.components {
		if res.OwnedBy(t) {
			return c, nil
		}
	}
	return nil, errors.InvalidComponent("no enabled component owns the resource")
}

// Close tears down every context, resource, and component.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ctx := range b.contexts {
		ctx.Destroy()
		delete(b.contexts, id)
	}
	for id, res := range b.resources {
		if c, err := b.componentFor(res); err == nil {
			c.UnrefResource(id)
		}
		b.releaseResource(res)
		delete(b.resources, id)
	}
	for _, c := range b.components {
		c.Close()
	}
}

// NumCapsets reports the size of the capset table.
func (b *Bridge) NumCapsets() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint32(len(b.capsets))
}

// GetCapsetInfo resolves a capset by table index, the way the device
// enumerates capsets at startup.
func (b *Bridge) GetCapsetInfo(index uint32) (id, version, size uint32, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index >= uint32(len(b.capsets)) {
		return 0, 0, 0, errors.InvalidCapset(index)
	}
	e := b.capsets[index]
	return e.id, e.version, e.size, nil
}

// GetCapsetInfoFromID resolves a capset by its protocol id.
func (b *Bridge) GetCapsetInfoFromID(id uint32) (version, size uint32, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.capsetByID(id)
	if err != nil {
		return 0, 0, err
	}
	return e.version, e.size, nil
}

func (b *Bridge) capsetByID(id uint32) (capsetEntry, error) {
	for _, e := range b.capsets {
		if e.id == id {
			return e, nil
		}
	}
	return capsetEntry{}, errors.InvalidCapset(id)
}

// GetCapset returns the capability blob for the capset id and version.
func (b *Bridge) GetCapset(id, version uint32) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.capsetByID(id)
	if err != nil {
		return nil, err
	}
	c, err := b.componentByType(e.component)
	if err != nil {
		return nil, err
	}
	return c.GetCapset(id, version), nil
}

// CreateContext creates a command-submission context. The low byte of
// contextInit selects a capset, which in turn selects the owning component;
// zero routes to the default component.
func (b *Bridge) CreateContext(ctxID, contextInit uint32, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, live := b.contexts[ctxID]; live {
		return errors.AlreadyInUse("context id")
	}

	ctype := b.defaultType
	if capsetID := contextInit & gpubridge.ContextInitCapsetIDMask; capsetID != 0 {
		e, err := b.capsetByID(capsetID)
		if err != nil {
			return err
		}
		ctype = e.component
	}
	c, err := b.componentByType(ctype)
	if err != nil {
		return err
	}

	ctx, err := c.CreateContext(ctxID, contextInit, name, b.fences.Handler())
	if err != nil {
		return err
	}
	b.contexts[ctxID] = ctx

	Logger().Debug("context created",
		zap.Uint32("ctx_id", ctxID),
		zap.String("component", ctype.String()),
		zap.String("name", name))
	return nil
}

// DestroyContext releases the context. Attached resources are detached,
// never destroyed.
func (b *Bridge) DestroyContext(ctxID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, ok := b.contexts[ctxID]
	if !ok {
		return errors.InvalidContextID(ctxID)
	}
	ctx.Destroy()
	delete(b.contexts, ctxID)

	Logger().Debug("context destroyed", zap.Uint32("ctx_id", ctxID))
	return nil
}

// AttachResource adds the resource to the context's resource set. A
// resource may be attached to any number of contexts.
func (b *Bridge) AttachResource(ctxID, resourceID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, ok := b.contexts[ctxID]
	if !ok {
		return errors.InvalidContextID(ctxID)
	}
	res, ok := b.resources[resourceID]
	if !ok {
		return errors.InvalidResourceID(resourceID)
	}
	ctx.Attach(res)
	return nil
}

// DetachResource removes the resource from the context's resource set.
func (b *Bridge) DetachResource(ctxID, resourceID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, ok := b.contexts[ctxID]
	if !ok {
		return errors.InvalidContextID(ctxID)
	}
	res, ok := b.resources[resourceID]
	if !ok {
		return errors.InvalidResourceID(resourceID)
	}
	ctx.Detach(res)
	return nil
}

// CreateResource3D allocates a 2D or 3D resource on the default component.
func (b *Bridge) CreateResource3D(resourceID uint32, create gpubridge.ResourceCreate3D) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, live := b.resources[resourceID]; live {
		return errors.AlreadyInUse("resource id")
	}
	c, err := b.componentByType(b.defaultType)
	if err != nil {
		return err
	}

	res, err := c.Create3D(resourceID, create)
	if err != nil {
		return err
	}
	b.resources[resourceID] = res

	Logger().Debug("resource created",
		zap.Uint32("resource_id", resourceID),
		zap.Uint32("width", create.Width),
		zap.Uint32("height", create.Height))
	return nil
}

// CreateBlob allocates blob storage. A non-zero ctxID routes creation to
// the context's component; otherwise the default component serves it.
// Ownership of handle, when non-nil, transfers with the call.
func (b *Bridge) CreateBlob(ctxID, resourceID uint32, create gpubridge.ResourceCreateBlob, backing []gpubridge.Iovec, handle *gpubridge.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, live := b.resources[resourceID]; live {
		return errors.AlreadyInUse("resource id")
	}

	ctype := b.defaultType
	if ctxID != 0 {
		ctx, ok := b.contexts[ctxID]
		if !ok {
			return errors.InvalidContextID(ctxID)
		}
		ctype = ctx.Type()
	}
	c, err := b.componentByType(ctype)
	if err != nil {
		return err
	}

	res, err := c.CreateBlob(ctxID, resourceID, create, backing, handle)
	if err != nil {
		return err
	}
	b.resources[resourceID] = res

	Logger().Debug("blob created",
		zap.Uint32("resource_id", resourceID),
		zap.Uint32("blob_mem", create.BlobMem),
		zap.Uint64("size", create.Size))
	return nil
}

// Import wraps an external memory object as a resource, or attaches
// metadata to an existing resource when the resource-exists flag is set.
func (b *Bridge) Import(resourceID uint32, handle *gpubridge.Handle, data gpubridge.ImportData) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Exactly one metadata kind accompanies the handle; conflicting or
	// absent metadata is rejected before any component sees the import.
	has3D := data.Flags&gpubridge.ImportFlagInfo3D != 0
	hasVulkan := data.Flags&gpubridge.ImportFlagInfoVulkan != 0
	if has3D && hasVulkan {
		return errors.InvalidImportData("both image layout and device identity set")
	}
	if !has3D && !hasVulkan {
		return errors.InvalidImportData("no metadata kind set")
	}

	existing, live := b.resources[resourceID]
	exists := data.Flags&gpubridge.ImportFlagResourceExists != 0

	var c component.Component
	var err error
	switch {
	case exists && !live:
		return errors.InvalidResourceID(resourceID)
	case exists:
		c, err = b.componentFor(existing)
	case live:
		return errors.AlreadyInUse("resource id")
	default:
		c, err = b.componentByType(b.defaultType)
	}
	if err != nil {
		return err
	}

	res, err := c.Import(resourceID, handle, data)
	if err != nil {
		return err
	}
	if res != nil {
		b.resources[resourceID] = res
	}
	return nil
}

// AttachBacking associates guest backing ranges with the resource.
func (b *Bridge) AttachBacking(resourceID uint32, backing []gpubridge.Iovec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.resources[resourceID]
	if !ok {
		return errors.InvalidResourceID(resourceID)
	}
	c, err := b.componentFor(res)
	if err != nil {
		return err
	}
	if err := c.AttachBacking(resourceID, backing); err != nil {
		return err
	}
	res.BackingIovecs = backing
	return nil
}

// DetachBacking disassociates backing. Safe when never attached.
func (b *Bridge) DetachBacking(resourceID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.resources[resourceID]
	if !ok {
		return errors.InvalidResourceID(resourceID)
	}
	c, err := b.componentFor(res)
	if err != nil {
		return err
	}
	c.DetachBacking(resourceID)
	res.BackingIovecs = nil
	return nil
}

// UnrefResource destroys the resource and releases its handle and mapping.
func (b *Bridge) UnrefResource(resourceID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.resources[resourceID]
	if !ok {
		return errors.InvalidResourceID(resourceID)
	}
	c, err := b.componentFor(res)
	if err != nil {
		return err
	}
	c.UnrefResource(resourceID)
	b.releaseResource(res)
	delete(b.resources, resourceID)

	Logger().Debug("resource unreferenced", zap.Uint32("resource_id", resourceID))
	return nil
}

func (b *Bridge) releaseResource(res *gpubridge.Resource) {
	if res.Handle != nil {
		res.Handle.Close()
		res.Handle = nil
	}
	if res.Mapping != nil {
		res.Mapping.Close()
		res.Mapping = nil
	}
}

// TransferWrite copies guest backing into the resource. Zero-extent
// transfers succeed without reaching any component.
func (b *Bridge) TransferWrite(ctxID, resourceID uint32, t gpubridge.Transfer3D) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.resources[resourceID]
	if !ok {
		return errors.InvalidResourceID(resourceID)
	}
	if t.IsEmpty() {
		return nil
	}
	c, err := b.componentFor(res)
	if err != nil {
		return err
	}
	return c.TransferWrite(ctxID, res, t)
}

// TransferRead copies the resource into buf, or into the attached backing
// when buf is nil. Zero-extent transfers succeed without reaching any
// component.
func (b *Bridge) TransferRead(ctxID, resourceID uint32, t gpubridge.Transfer3D, buf []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.resources[resourceID]
	if !ok {
		return errors.InvalidResourceID(resourceID)
	}
	if t.IsEmpty() {
		return nil
	}
	c, err := b.componentFor(res)
	if err != nil {
		return err
	}
	return c.TransferRead(ctxID, res, t, buf)
}

// ResourceFlush signals content change for presentation.
func (b *Bridge) ResourceFlush(resourceID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.resources[resourceID]
	if !ok {
		return errors.InvalidResourceID(resourceID)
	}
	c, err := b.componentFor(res)
	if err != nil {
		return err
	}
	return c.ResourceFlush(res)
}

// Map produces a process-local view of blob storage. Components without a
// map path of their own fall back to mapping the resource's exported handle
// through the configured host mapper; the bridge owns that region until
// Unmap or unref.
func (b *Bridge) Map(resourceID uint32) (gpubridge.Mapping, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.resources[resourceID]
	if !ok {
		return gpubridge.Mapping{}, errors.InvalidResourceID(resourceID)
	}
	if res.Mapping != nil {
		return gpubridge.Mapping{Ptr: res.Mapping.Pointer(), Size: res.Mapping.Size()}, nil
	}
	c, err := b.componentFor(res)
	if err != nil {
		return gpubridge.Mapping{}, err
	}

	m, err := c.Map(resourceID)
	if err == nil {
		return m, nil
	}
	if b.mapper == nil || res.Handle == nil || !errors.IsKind(err, errors.KindUnsupported) {
		return gpubridge.Mapping{}, err
	}

	info := gpubridge.MapCacheCached | gpubridge.MapAccessRW
	if res.MapInfo != nil {
		info = *res.MapInfo
	}
	region, err := b.mapper.Map(res.Handle.OS, res.Size, info)
	if err != nil {
		return gpubridge.Mapping{}, err
	}
	res.Mapping = region
	return gpubridge.Mapping{Ptr: region.Pointer(), Size: region.Size()}, nil
}

// Unmap releases the process-local view.
func (b *Bridge) Unmap(resourceID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.resources[resourceID]
	if !ok {
		return errors.InvalidResourceID(resourceID)
	}
	if res.Mapping != nil {
		err := res.Mapping.Close()
		res.Mapping = nil
		return err
	}
	c, err := b.componentFor(res)
	if err != nil {
		return err
	}
	return c.Unmap(resourceID)
}

// MapInfo reports the backend-declared cache and access flags for a mapped
// blob.
func (b *Bridge) MapInfo(resourceID uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.resources[resourceID]
	if !ok {
		return 0, errors.InvalidResourceID(resourceID)
	}
	if res.MapInfo == nil {
		return 0, errors.Unsupported("map info")
	}
	return *res.MapInfo, nil
}

// ExportBlob duplicates the resource's exported handle. The returned handle
// has a lifetime independent of the resource; closing it is the caller's
// responsibility.
func (b *Bridge) ExportBlob(resourceID uint32) (*gpubridge.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.resources[resourceID]
	if !ok {
		return nil, errors.InvalidResourceID(resourceID)
	}
	if !res.Blob || res.Handle == nil {
		return nil, errors.Unsupported("export of a resource without a shareable handle")
	}
	h, err := res.Handle.TryClone()
	if err != nil {
		return nil, errors.InvalidHandle(err)
	}
	return h, nil
}

// SubmitCommand forwards a serialized command buffer to the context.
func (b *Bridge) SubmitCommand(ctxID uint32, commands []byte, fenceIDs []uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, ok := b.contexts[ctxID]
	if !ok {
		return errors.InvalidContextID(ctxID)
	}
	return ctx.SubmitCmd(commands, fenceIDs)
}

// CreateFence requests a completion notification. Fences carrying ring
// information route to their context; others go to the default component's
// global timeline. The returned handle is non-nil only for host-shareable
// fences whose export succeeded.
func (b *Bridge) CreateFence(f gpubridge.Fence) (*gpubridge.Handle, error) {
	b.mu.Lock()

	if f.Flags&gpubridge.FlagInfoRingIdx != 0 {
		ctx, ok := b.contexts[f.CtxID]
		if !ok {
			b.mu.Unlock()
			return nil, errors.InvalidContextID(f.CtxID)
		}
		// Ring 1 completes synchronously inside the context and never
		// passes through the manager.
		if f.RingIdx != 1 {
			b.fences.Register(f)
		}
		b.mu.Unlock()
		h, err := ctx.CreateFence(f)
		if err != nil && f.RingIdx != 1 {
			// A rejected fence must never surface as a completion when
			// a later fence retires the ring.
			b.fences.Unregister(f)
		}
		return h, err
	}

	c, err := b.componentByType(b.defaultType)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	b.fences.Register(f)
	b.mu.Unlock()
	if err := c.CreateFence(f); err != nil {
		b.fences.Unregister(f)
		return nil, err
	}
	return nil, nil
}

// Suspend quiesces every component before a snapshot.
func (b *Bridge) Suspend() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.components {
		if err := c.Suspend(); err != nil {
			return err
		}
	}
	return nil
}

// Resume restarts every component after a restore.
func (b *Bridge) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.components {
		if err := c.Resume(); err != nil {
			return err
		}
	}
	return nil
}

// componentRecord wraps a component's opaque snapshot bytes with the type
// needed to route them back on restore.
type componentRecord struct {
	Component gpubridge.ComponentType `json:"component"`
	Data      json.RawMessage         `json:"data"`
}

// resourceRecord is the registry's own view of a resource. Pixel and blob
// contents are component state and travel in the component record.
type resourceRecord struct {
	ResourceID    uint32  `json:"resource_id"`
	Blob          bool    `json:"blob"`
	BlobMem       uint32  `json:"blob_mem"`
	BlobFlags     uint32  `json:"blob_flags"`
	ComponentMask uint8   `json:"component_mask"`
	Size          uint64  `json:"size"`
	MapInfo       *uint32 `json:"map_info,omitempty"`
}

// Snapshot serializes the full device state: one record per component, per
// resource, and per context. Call Suspend first.
func (b *Bridge) Snapshot(w io.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sw, err := snapshot.NewWriter(w)
	if err != nil {
		return err
	}

	// Records are emitted in id order so identical state produces an
	// identical stream.
	for _, t := range sortedKeys(b.components) {
		c := b.components[t]
		data, err := c.Snapshot()
		if err != nil {
			if errors.IsKind(err, errors.KindUnsupported) {
				continue
			}
			return err
		}
		rec := componentRecord{Component: t, Data: data}
		if err := sw.WriteJSON(snapshot.EntityComponent, uint32(t), rec); err != nil {
			return err
		}
	}

	for _, id := range sortedKeys(b.resources) {
		res := b.resources[id]
		rec := resourceRecord{
			ResourceID:    res.ResourceID,
			Blob:          res.Blob,
			BlobMem:       res.BlobMem,
			BlobFlags:     res.BlobFlags,
			ComponentMask: res.ComponentMask,
			Size:          res.Size,
			MapInfo:       res.MapInfo,
		}
		if err := sw.WriteJSON(snapshot.EntityResource, id, rec); err != nil {
			return err
		}
	}

	for _, id := range sortedKeys(b.contexts) {
		ctx := b.contexts[id]
		data, err := ctx.Snapshot()
		if err != nil {
			return err
		}
		rec := componentRecord{Component: ctx.Type(), Data: data}
		if err := sw.WriteJSON(snapshot.EntityContext, id, rec); err != nil {
			return err
		}
	}

	Logger().Debug("snapshot written",
		zap.Int("resources", len(b.resources)),
		zap.Int("contexts", len(b.contexts)))
	return nil
}

// Restore reconstructs device state from a snapshot stream. A record that
// fails to apply is reported but does not stop the remaining entities from
// restoring; the per-entity errors are aggregated in the return value.
func (b *Bridge) Restore(r io.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sr, err := snapshot.NewReader(r)
	if err != nil {
		return err
	}

	var errs []error
	for {
		rec, err := sr.ReadRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, err)
			break
		}
		if err := b.restoreRecord(rec); err != nil {
			errs = append(errs, err)
		}
	}

	Logger().Debug("snapshot restored",
		zap.Int("resources", len(b.resources)),
		zap.Int("contexts", len(b.contexts)),
		zap.Int("failed_entities", len(errs)))
	return stderrors.Join(errs...)
}

func (b *Bridge) restoreRecord(rec snapshot.Record) error {
	switch rec.Tag {
	case snapshot.EntityComponent:
		var cr componentRecord
		if err := rec.DecodePayload(&cr); err != nil {
			return err
		}
		c, err := b.componentByType(cr.Component)
		if err != nil {
			return err
		}
		return c.Restore(cr.Data)

	case snapshot.EntityResource:
		var rr resourceRecord
		if err := rec.DecodePayload(&rr); err != nil {
			return err
		}
		b.resources[rec.ID] = &gpubridge.Resource{
			ResourceID:    rr.ResourceID,
			Blob:          rr.Blob,
			BlobMem:       rr.BlobMem,
			BlobFlags:     rr.BlobFlags,
			ComponentMask: rr.ComponentMask,
			Size:          rr.Size,
			MapInfo:       rr.MapInfo,
		}
		return nil

	case snapshot.EntityContext:
		var cr componentRecord
		if err := rec.DecodePayload(&cr); err != nil {
			return err
		}
		c, err := b.componentByType(cr.Component)
		if err != nil {
			return err
		}
		ctx, err := c.RestoreContext(cr.Data, b.fences.Handler())
		if err != nil {
			return err
		}
		b.contexts[rec.ID] = ctx
		return nil

	default:
		return errors.Snapshot("unknown entity tag", nil)
	}
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

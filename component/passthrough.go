package component

import (
	"encoding/binary"
	"encoding/json"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/errors"
)

func init() {
	Register(gpubridge.ComponentPassthrough, func(opts Options) (Component, error) {
		return NewPassthrough(opts), nil
	})
}

// crossDomainCaps is the capability blob advertised for the cross-domain
// capset: version, channel bitmask, dmabuf support, external memory support.
const crossDomainCapsSize = 16

const crossDomainVersion = 1

// Passthrough serves guest-memory blobs without a native renderer. Blob
// storage stays in the guest backing ranges; the host side only tracks
// identity and, for shareable blobs, an exported memory handle. Work
// submitted through its contexts completes immediately.
type Passthrough struct {
	Defaults
	resources    map[uint32]*guestBlob
	contexts     map[uint32]struct{}
	fenceHandler gpubridge.FenceHandler
	shmAlloc     func(size uint64) (gpubridge.Descriptor, error)
}

type guestBlob struct {
	Size      uint64 `json:"size"`
	BlobFlags uint32 `json:"blob_flags"`
	backing   []gpubridge.Iovec
}

func NewPassthrough(opts Options) *Passthrough {
	return &Passthrough{
		resources:    make(map[uint32]*guestBlob),
		contexts:     make(map[uint32]struct{}),
		fenceHandler: opts.FenceHandler,
		shmAlloc:     opts.ShmAlloc,
	}
}

func (p *Passthrough) Type() gpubridge.ComponentType {
	return gpubridge.ComponentPassthrough
}

func (p *Passthrough) Close() {
	p.resources = make(map[uint32]*guestBlob)
	p.contexts = make(map[uint32]struct{})
}

func (p *Passthrough) GetCapsetInfo(capsetID uint32) (uint32, uint32) {
	if capsetID != gpubridge.CapsetCrossDomain {
		return 0, 0
	}
	return crossDomainVersion, crossDomainCapsSize
}

func (p *Passthrough) GetCapset(capsetID uint32, version uint32) []byte {
	if capsetID != gpubridge.CapsetCrossDomain {
		return nil
	}
	caps := make([]byte, crossDomainCapsSize)
	binary.LittleEndian.PutUint32(caps[0:], crossDomainVersion)
	binary.LittleEndian.PutUint32(caps[4:], 0) // supported channels
	binary.LittleEndian.PutUint32(caps[8:], 0) // dmabuf import
	binary.LittleEndian.PutUint32(caps[12:], 0)
	return caps
}

func (p *Passthrough) CreateFence(fence gpubridge.Fence) error {
	if p.fenceHandler != nil {
		p.fenceHandler(fence)
	}
	return nil
}

func (p *Passthrough) CreateBlob(ctxID, resourceID uint32, create gpubridge.ResourceCreateBlob, backing []gpubridge.Iovec, handle *gpubridge.Handle) (*gpubridge.Resource, error) {
	if handle != nil {
		handle.Close()
		return nil, errors.InvalidHandle(errors.Unsupported("handle import on a guest blob"))
	}
	if create.BlobMem != gpubridge.BlobMemGuest {
		return nil, errors.Unsupported("host blob memory")
	}
	if create.Size == 0 || gpubridge.IovecLen(backing) < create.Size {
		return nil, errors.InvalidIovec("guest blob backing smaller than blob size")
	}

	res := &gpubridge.Resource{
		ResourceID:    resourceID,
		Blob:          true,
		BlobMem:       create.BlobMem,
		BlobFlags:     create.BlobFlags,
		BackingIovecs: backing,
		ComponentMask: gpubridge.ComponentPassthrough.Mask(),
		Size:          create.Size,
	}

	if create.BlobFlags&gpubridge.BlobFlagUseShareable != 0 && p.shmAlloc != nil {
		desc, err := p.shmAlloc(create.Size)
		if err == nil {
			res.Handle = &gpubridge.Handle{OS: desc, Type: gpubridge.HandleTypeMemShm}
		}
		// Allocation failure only loses the export handle.
	}

	p.resources[resourceID] = &guestBlob{
		Size:      create.Size,
		BlobFlags: create.BlobFlags,
		backing:   backing,
	}
	return res, nil
}

func (p *Passthrough) AttachBacking(resourceID uint32, backing []gpubridge.Iovec) error {
	res, ok := p.resources[resourceID]
	if !ok {
		return errors.InvalidResourceID(resourceID)
	}
	res.backing = backing
	return nil
}

func (p *Passthrough) DetachBacking(resourceID uint32) {
	if res, ok := p.resources[resourceID]; ok {
		res.backing = nil
	}
}

func (p *Passthrough) UnrefResource(resourceID uint32) {
	delete(p.resources, resourceID)
}

func (p *Passthrough) CreateContext(ctxID uint32, contextInit uint32, name string, h gpubridge.FenceHandler) (Context, error) {
	if capset := contextInit & gpubridge.ContextInitCapsetIDMask; capset != 0 && capset != gpubridge.CapsetCrossDomain {
		return nil, errors.InvalidCapset(capset)
	}
	if _, ok := p.contexts[ctxID]; ok {
		return nil, errors.AlreadyInUse("context id")
	}
	p.contexts[ctxID] = struct{}{}
	return &passthroughContext{owner: p, ctxID: ctxID, fenceHandler: h}, nil
}

type passthroughSnapshot struct {
	Resources map[uint32]*guestBlob `json:"resources"`
	Contexts  []uint32              `json:"contexts"`
}

func (p *Passthrough) Snapshot() ([]byte, error) {
	snap := passthroughSnapshot{Resources: p.resources}
	for id := range p.contexts {
		snap.Contexts = append(snap.Contexts, id)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, errors.Snapshot("passthrough state", err)
	}
	return data, nil
}

func (p *Passthrough) Restore(data []byte) error {
	var snap passthroughSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errors.Snapshot("passthrough state", err)
	}
	if snap.Resources == nil {
		snap.Resources = make(map[uint32]*guestBlob)
	}
	p.resources = snap.Resources
	p.contexts = make(map[uint32]struct{})
	// Backing is reattached by the transport after restore; context
	// membership is rebuilt through RestoreContext.
	return nil
}

func (p *Passthrough) RestoreContext(data []byte, h gpubridge.FenceHandler) (Context, error) {
	var snap contextSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Snapshot("passthrough context", err)
	}
	p.contexts[snap.CtxID] = struct{}{}
	return &passthroughContext{owner: p, ctxID: snap.CtxID, fenceHandler: h}, nil
}

// passthroughContext accepts command buffers and completes every fence
// inline. Host work for guest blobs finishes before submission returns, so
// the synchronous ring rule is trivially satisfied.
type passthroughContext struct {
	owner        *Passthrough
	ctxID        uint32
	fenceHandler gpubridge.FenceHandler
}

func (c *passthroughContext) Type() gpubridge.ComponentType {
	return gpubridge.ComponentPassthrough
}

func (c *passthroughContext) SubmitCmd(commands []byte, fenceIDs []uint64) error {
	if len(commands)%commandWordSize != 0 {
		return errors.InvalidCommandSize(len(commands))
	}
	return nil
}

func (c *passthroughContext) Attach(res *gpubridge.Resource) {}

func (c *passthroughContext) Detach(res *gpubridge.Resource) {}

func (c *passthroughContext) CreateFence(fence gpubridge.Fence) (*gpubridge.Handle, error) {
	if fence.Flags&gpubridge.FlagFenceHostShareable != 0 {
		return nil, errors.Unsupported("fence export")
	}
	if c.fenceHandler != nil {
		c.fenceHandler(fence)
	}
	return nil, nil
}

func (c *passthroughContext) Snapshot() ([]byte, error) {
	data, err := json.Marshal(contextSnapshot{CtxID: c.ctxID})
	if err != nil {
		return nil, errors.Snapshot("passthrough context", err)
	}
	return data, nil
}

func (c *passthroughContext) Destroy() {
	delete(c.owner.contexts, c.ctxID)
}
